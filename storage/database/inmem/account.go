package inmemdb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aurraa/classroom/core"
	"github.com/aurraa/classroom/core/account"
)

type (
	DB struct {
		account *accountTable
	}

	accountTable struct {
		mutex sync.RWMutex
		table map[string]*account.Account
	}

	accountRepository struct {
		db *accountTable
	}
)

var _ account.Repository = (*accountRepository)(nil) // interface compliance check

func Open() *DB {
	return &DB{account: &accountTable{table: make(map[string]*account.Account)}}
}

func NewAccountRepository(db *DB) account.Repository {
	return &accountRepository{db: db.account}
}

func (repo *accountRepository) query() []account.Account {
	accounts := make([]account.Account, 0, len(repo.db.table))
	for _, a := range repo.db.table {
		accounts = append(accounts, *a)
	}
	return accounts
}

func (repo *accountRepository) CheckUniqueness(_ context.Context, username, email string, excludedIDs ...string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, acc := range repo.query() {
		if isExcluded(acc.ID, excludedIDs) {
			continue
		}
		if username != "" && strings.EqualFold(acc.Username, username) {
			return account.ErrUsernameExists
		}
		if strings.EqualFold(acc.Email, email) {
			return account.ErrEmailExists
		}
	}
	return nil
}

func (repo *accountRepository) CreateAccount(_ context.Context, acc account.Account, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acc.ID = uuid.New().String()
	repo.db.table[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) QueryAccounts(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	accounts := repo.query()
	sort.SliceStable(accounts, func(i, j int) bool {
		for _, ord := range ordering {
			a, b := sortKey(accounts[i], ord.Field), sortKey(accounts[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

func sortKey(acc account.Account, field string) string {
	switch field {
	case "created_at":
		return acc.CreatedAt.UTC().Format("20060102150405.000000000")
	case "email":
		return acc.Email
	case "username":
		return acc.Username
	case "name":
		return acc.Name
	default:
		return acc.ID
	}
}

func (repo *accountRepository) GetAccount(_ context.Context, filter account.GetFilter, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if acc, ok := repo.db.table[filter.ID]; ok {
			return *acc, nil
		}
		return account.Account{}, account.ErrNotFound
	}

	for _, acc := range repo.query() {
		switch {
		case filter.Username != "":
			if strings.EqualFold(acc.Username, filter.Username) {
				return acc, nil
			}
		case filter.Email != "":
			if strings.EqualFold(acc.Email, filter.Email) {
				return acc, nil
			}
		case filter.UsernameOrEmail != "":
			if strings.EqualFold(acc.Username, filter.UsernameOrEmail) || strings.EqualFold(acc.Email, filter.UsernameOrEmail) {
				return acc, nil
			}
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (repo *accountRepository) UpdateAccount(_ context.Context, acc account.Account, _ ...core.DBExecutor) (account.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[acc.ID]; !ok {
		return account.Account{}, account.ErrNotFound
	}
	repo.db.table[acc.ID] = &acc
	return acc, nil
}

func (repo *accountRepository) DeleteAccountsByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func isExcluded(id string, excludedIDs []string) bool {
	for _, ex := range excludedIDs {
		if ex == id {
			return true
		}
	}
	return false
}
