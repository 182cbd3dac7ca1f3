package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sigweihq/wcbroker/pkg/classifier"
	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/types"
	"github.com/spf13/cobra"
)

type classification struct {
	Kind        types.OperationKind       `json:"kind"`
	Method      string                    `json:"method"`
	Message     string                    `json:"message,omitempty"`
	Transaction *types.TransactionRequest `json:"transaction,omitempty"`
	Chain       *types.ChainDescriptor    `json:"chain,omitempty"`
	ScanPattern string                    `json:"scanPattern,omitempty"`
	Reject      string                    `json:"reject,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [request-json]",
		Short: "Show how a call request would be handled (reads stdin without an argument)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 1 {
				raw = []byte(args[0])
			} else {
				var err error
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read request: %w", err)
				}
			}

			var req types.CallRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return fmt.Errorf("invalid call request: %w", err)
			}
			if req.Method == "" {
				return fmt.Errorf("invalid call request: method is missing")
			}

			result := classifier.Classify(req)
			out := classification{
				Kind:        result.Kind,
				Method:      result.Method,
				Message:     result.Message,
				Transaction: result.Transaction,
				Chain:       result.Chain,
				ScanPattern: result.ScanPattern,
			}
			if result.Kind == types.KindUnsupported {
				out.Reject = constants.ReasonMethodNotSupported
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
