package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sigweihq/wcbroker/pkg/constants"
	"github.com/sigweihq/wcbroker/pkg/types"
)

// PendingKey is the store key of an in-flight transaction
func PendingKey(txHash string) string {
	return constants.PendingTxKeyPrefix + txHash
}

// PutPendingTransaction records a broadcast transaction until its receipt is seen
func PutPendingTransaction(ctx context.Context, s Store, pending types.PendingTransaction) error {
	if pending.TxHash == "" {
		return errors.New("pending transaction has no hash")
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending transaction: %w", err)
	}
	return s.Put(ctx, PendingKey(pending.TxHash), data)
}

// RemovePendingTransaction drops the entry of a mined transaction
func RemovePendingTransaction(ctx context.Context, s Store, txHash string) error {
	return s.Remove(ctx, PendingKey(txHash))
}

// ListPendingTransactions returns every recorded in-flight transaction, ordered by key.
// Entries that cannot be decoded are skipped and their keys returned separately.
func ListPendingTransactions(ctx context.Context, s Store) ([]types.PendingTransaction, []string, error) {
	keys, err := s.ListKeys(ctx, constants.PendingTxKeyPrefix)
	if err != nil {
		return nil, nil, fmt.Errorf("list pending transactions: %w", err)
	}

	var (
		pending []types.PendingTransaction
		corrupt []string
	)
	for _, key := range keys {
		data, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}

		var entry types.PendingTransaction
		if err := json.Unmarshal(data, &entry); err != nil {
			corrupt = append(corrupt, key)
			continue
		}
		if entry.TxHash == "" {
			entry.TxHash = strings.TrimPrefix(key, constants.PendingTxKeyPrefix)
		}
		pending = append(pending, entry)
	}
	return pending, corrupt, nil
}

// SaveSession persists the session blob under the fixed session key
func SaveSession(ctx context.Context, s Store, session types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.Put(ctx, constants.SessionKey, data)
}

// LoadSession returns the persisted session; ok is false when none is stored
func LoadSession(ctx context.Context, s Store) (session types.Session, ok bool, err error) {
	data, err := s.Get(ctx, constants.SessionKey)
	if errors.Is(err, ErrNotFound) {
		return types.Session{}, false, nil
	}
	if err != nil {
		return types.Session{}, false, err
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return types.Session{}, false, fmt.Errorf("decode session: %w", err)
	}
	return session, true, nil
}

// ClearSession removes the persisted session blob
func ClearSession(ctx context.Context, s Store) error {
	return s.Remove(ctx, constants.SessionKey)
}
