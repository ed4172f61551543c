package tokenrepofake

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/token"
)

var _ token.Repo = (*FakeTokenRepo)(nil)

type storedRecord struct {
	record *token.Record
	seq    int // insertion order, newest-first tie break
}

type FakeTokenRepo struct {
	records map[string]*storedRecord
	secrets map[string]string // secret to record ID
	byOwner map[string][]string
	nextSeq int
	lock    sync.Mutex
}

func NewFakeTokenRepo() *FakeTokenRepo {
	return &FakeTokenRepo{
		records: make(map[string]*storedRecord),
		secrets: make(map[string]string),
		byOwner: make(map[string][]string),
	}
}

func (tr *FakeTokenRepo) ListByOwner(_ context.Context, ownerID string) ([]*token.Record, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	ids := tr.byOwner[ownerID]
	records := make([]*token.Record, 0, len(ids))
	for _, id := range ids {
		clone := *tr.records[id].record
		records = append(records, &clone)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].IssuedOn.Equal(records[j].IssuedOn) {
			return records[i].IssuedOn.After(records[j].IssuedOn)
		}
		return tr.records[records[i].ID].seq > tr.records[records[j].ID].seq
	})

	return records, nil
}

func (tr *FakeTokenRepo) Append(_ context.Context, record *token.Record) error {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	if _, ok := tr.secrets[record.Secret]; ok {
		return token.DuplicateSecretErr
	}
	if _, ok := tr.records[record.ID]; ok {
		return errors.New("duplicate record id")
	}

	clone := *record
	tr.records[record.ID] = &storedRecord{record: &clone, seq: tr.nextSeq}
	tr.nextSeq++
	tr.secrets[record.Secret] = record.ID
	tr.byOwner[record.OwnerID] = append(tr.byOwner[record.OwnerID], record.ID)
	return nil
}

func (tr *FakeTokenRepo) IncrementCounter(_ context.Context, id string, expectedPrior int) (int, error) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	stored, ok := tr.records[id]
	if !ok {
		return 0, token.NotFoundErr
	}
	if stored.record.Counter != expectedPrior {
		return 0, token.CounterConflictErr
	}
	stored.record.Counter++
	return stored.record.Counter, nil
}

// Counter reports the current counter value of a record, for test
// assertions.
func (tr *FakeTokenRepo) Counter(id string) int {
	tr.lock.Lock()
	defer tr.lock.Unlock()
	if stored, ok := tr.records[id]; ok {
		return stored.record.Counter
	}
	return -1
}
