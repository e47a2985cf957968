package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/lava-payment/lavapay-go/types"
)

const (
	historyDir  = "history"
	contactsDir = "contacts"
)

// createDB opens a badgerhold store at dir, or an in-memory one when
// dir is empty.
func createDB(dir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dir) == 0

	opts := badger.DefaultOptions(dir)
	opts.InMemory = isInMemory
	opts.Logger = logger

	return badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
}

func storeErr(format string, args ...any) error {
	return &types.PayError{Code: types.ErrStoreError, Message: fmt.Sprintf(format, args...)}
}

type historyRepository struct {
	store *badgerhold.Store
}

// NewHistoryStore opens the payment history store under baseDir, or in
// memory when baseDir is empty.
func NewHistoryStore(baseDir string, logger badger.Logger) (HistoryStore, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, historyDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, storeErr("failed to open history store: %s", err)
	}
	return &historyRepository{store}, nil
}

func (r *historyRepository) Add(ctx context.Context, record PaymentRecord) error {
	if err := r.store.Insert(record.TxID, record); err != nil {
		if errors.Is(err, badgerhold.ErrKeyExists) {
			return storeErr("payment %s already recorded", record.TxID)
		}
		return storeErr("failed to record payment: %s", err)
	}
	return nil
}

func (r *historyRepository) UpdateStatus(
	ctx context.Context, txID string, status types.SettlementStatus,
) error {
	var record PaymentRecord
	if err := r.store.Get(txID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return storeErr("payment %s not found", txID)
		}
		return storeErr("failed to load payment: %s", err)
	}
	record.Status = status
	if err := r.store.Update(txID, &record); err != nil {
		return storeErr("failed to update payment: %s", err)
	}
	return nil
}

func (r *historyRepository) Get(ctx context.Context, txID string) (*PaymentRecord, error) {
	var record PaymentRecord
	if err := r.store.Get(txID, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, storeErr("payment %s not found", txID)
		}
		return nil, storeErr("failed to load payment: %s", err)
	}
	return &record, nil
}

func (r *historyRepository) List(ctx context.Context) ([]PaymentRecord, error) {
	var records []PaymentRecord
	if err := r.store.Find(&records, nil); err != nil {
		return nil, storeErr("failed to list payments: %s", err)
	}
	// Newest first, the order the history screen shows.
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	return records, nil
}

func (r *historyRepository) Close() {
	// nolint:all
	r.store.Close()
}

type contactRepository struct {
	store *badgerhold.Store
}

// NewContactStore opens the contact book under baseDir, or in memory
// when baseDir is empty.
func NewContactStore(baseDir string, logger badger.Logger) (ContactStore, error) {
	var dir string
	if len(baseDir) > 0 {
		dir = filepath.Join(baseDir, contactsDir)
	}
	store, err := createDB(dir, logger)
	if err != nil {
		return nil, storeErr("failed to open contact store: %s", err)
	}
	return &contactRepository{store}, nil
}

func contactKey(address string) string {
	return strings.ToLower(address)
}

func (r *contactRepository) Upsert(ctx context.Context, contact Contact) error {
	if err := r.store.Upsert(contactKey(contact.Address), contact); err != nil {
		return storeErr("failed to save contact: %s", err)
	}
	return nil
}

func (r *contactRepository) Get(ctx context.Context, address string) (*Contact, error) {
	var contact Contact
	if err := r.store.Get(contactKey(address), &contact); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, storeErr("contact %s not found", address)
		}
		return nil, storeErr("failed to load contact: %s", err)
	}
	return &contact, nil
}

func (r *contactRepository) List(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	if err := r.store.Find(&contacts, nil); err != nil {
		return nil, storeErr("failed to list contacts: %s", err)
	}
	sort.Slice(contacts, func(i, j int) bool {
		return contacts[i].Name < contacts[j].Name
	})
	return contacts, nil
}

func (r *contactRepository) Delete(ctx context.Context, address string) error {
	if err := r.store.Delete(contactKey(address), Contact{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil
		}
		return storeErr("failed to delete contact: %s", err)
	}
	return nil
}

func (r *contactRepository) Close() {
	// nolint:all
	r.store.Close()
}
