package bill

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	billBucketName        = "bills"
	transactionBucketName = "transactions"
)

// DB defines the interface for database operations
type DB interface {
	// SaveBill saves a bill to the database
	SaveBill(bill *Bill) error

	// GetBill retrieves a bill by ID
	GetBill(id string) (*Bill, error)

	// ListBills returns all bills
	ListBills() ([]*Bill, error)

	// UpdateBill applies fn to the stored bill and saves the result in one
	// update. It fails with ErrNotFound if the bill is gone.
	UpdateBill(id string, fn func(*Bill) error) error

	// DeleteBill removes a bill from the database
	DeleteBill(id string) error

	// SaveTransaction saves a transaction to the database
	SaveTransaction(t *Transaction) error

	// GetTransaction retrieves a transaction by ID
	GetTransaction(id string) (*Transaction, error)

	// ListTransactions returns all transactions
	ListTransactions() ([]*Transaction, error)

	// DeleteTransaction removes a transaction from the database
	DeleteTransaction(id string) error

	// SaveBillExpense stores an expense and marks its bill as converted in
	// one update. It fails with ErrExpenseExists if the stored bill was
	// already converted.
	SaveBillExpense(bill *Bill, expense *Transaction) error

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{billBucketName, transactionBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// put marshals v into bucket under id
func put(tx *bbolt.Tx, bucket, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", bucket, err)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(id), data)
}

// get unmarshals the value stored under id into v
func get(tx *bbolt.Tx, bucket, id string, v any) error {
	data := tx.Bucket([]byte(bucket)).Get([]byte(id))
	if data == nil {
		return fmt.Errorf("%w: %s %s", ErrNotFound, bucket, id)
	}
	return json.Unmarshal(data, v)
}

// SaveBill saves a bill to the database
func (b *BoltDB) SaveBill(bill *Bill) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, billBucketName, bill.ID, bill)
	})
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*Bill, error) {
	var bill Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		return get(tx, billBucketName, id, &bill)
	})
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// ListBills returns all bills
func (b *BoltDB) ListBills() ([]*Bill, error) {
	bills := make([]*Bill, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(billBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var bill Bill
			if err := json.Unmarshal(v, &bill); err != nil {
				return fmt.Errorf("unmarshaling bill: %w", err)
			}
			bills = append(bills, &bill)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// UpdateBill reads, modifies and writes back a bill in one transaction
func (b *BoltDB) UpdateBill(id string, fn func(*Bill) error) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		var bill Bill
		if err := get(tx, billBucketName, id, &bill); err != nil {
			return err
		}
		if err := fn(&bill); err != nil {
			return err
		}
		return put(tx, billBucketName, id, &bill)
	})
}

// DeleteBill removes a bill from the database
func (b *BoltDB) DeleteBill(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(billBucketName)).Delete([]byte(id))
	})
}

// SaveTransaction saves a transaction to the database
func (b *BoltDB) SaveTransaction(t *Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return put(tx, transactionBucketName, t.ID, t)
	})
}

// GetTransaction retrieves a transaction by ID
func (b *BoltDB) GetTransaction(id string) (*Transaction, error) {
	var t Transaction
	err := b.db.View(func(tx *bbolt.Tx) error {
		return get(tx, transactionBucketName, id, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransactions returns all transactions
func (b *BoltDB) ListTransactions() ([]*Transaction, error) {
	transactions := make([]*Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(transactionBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			transactions = append(transactions, &t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return transactions, nil
}

// DeleteTransaction removes a transaction from the database
func (b *BoltDB) DeleteTransaction(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(transactionBucketName)).Delete([]byte(id))
	})
}

// SaveBillExpense stores the expense and the converted bill together
func (b *BoltDB) SaveBillExpense(bill *Bill, expense *Transaction) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		var stored Bill
		if err := get(tx, billBucketName, bill.ID, &stored); err != nil {
			return err
		}
		if stored.ExpenseCreated {
			return ErrExpenseExists
		}
		if err := put(tx, transactionBucketName, expense.ID, expense); err != nil {
			return err
		}
		return put(tx, billBucketName, bill.ID, bill)
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
