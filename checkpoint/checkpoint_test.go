package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
	"github.com/redis/go-redis/v9"
)

func engineCheckpoint(t *testing.T, runID, nodeID, next string) []byte {
	t.Helper()
	data, err := fgcheckpoint.New(runID, nodeID, 1, []byte(`{"runId":"`+runID+`","loopCount":2}`), next).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}

// =============================================================================
// Codec
// =============================================================================

func TestSealOpen(t *testing.T) {
	rec := Record{
		RunID:    "run-1",
		NodeID:   "human_gate",
		Sequence: 3,
		SavedAt:  time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC),
		Data:     []byte(`{"state":true}`),
	}

	sealed, err := Seal(rec)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if got.RunID != "run-1" || got.NodeID != "human_gate" || got.Sequence != 3 || string(got.Data) != `{"state":true}` {
		t.Errorf("Open() = %+v", got)
	}
	if !got.SavedAt.Equal(rec.SavedAt) {
		t.Errorf("SavedAt = %v, want %v", got.SavedAt, rec.SavedAt)
	}
}

func TestOpen_DetectsCorruption(t *testing.T) {
	sealed, err := Seal(Record{RunID: "run-1", NodeID: "plan", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	flipped := append([]byte(nil), sealed...)
	flipped[len(flipped)-1] ^= 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated", sealed[:10]},
		{"bad header", append([]byte("XXXX"), sealed[4:]...)},
		{"flipped body byte", flipped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.data)
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("Open() err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestOpenFor_RejectsMovedRecord(t *testing.T) {
	sealed, err := Seal(Record{RunID: "run-1", NodeID: "plan", Data: []byte("x")})
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := openFor(sealed, "run-2", "plan"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("openFor(other run) err = %v, want ErrCorrupt", err)
	}
	if _, err := openFor(sealed, "run-1", "notify"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("openFor(other node) err = %v, want ErrCorrupt", err)
	}
}

// =============================================================================
// Store contract
// =============================================================================

func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	if _, err := store.Load("missing", "plan"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) err = %v, want ErrNotFound", err)
	}
	if infos, err := store.List("missing"); err != nil || len(infos) != 0 {
		t.Errorf("List(missing) = %v, %v; want empty", infos, err)
	}
	if _, err := Latest(store, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(missing) err = %v, want ErrNotFound", err)
	}

	for _, step := range []struct{ node, next string }{
		{"plan", "process_tickets"},
		{"process_tickets", "human_gate"},
		{"human_gate", "__end__"},
	} {
		if err := store.Save("run-a", step.node, engineCheckpoint(t, "run-a", step.node, step.next)); err != nil {
			t.Fatalf("Save(%s): %v", step.node, err)
		}
	}

	infos, err := store.List("run-a")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var order []string
	for _, info := range infos {
		order = append(order, info.NodeID)
	}
	if strings.Join(order, ",") != "plan,process_tickets,human_gate" {
		t.Errorf("List() order = %v", order)
	}

	// Replacing a node's checkpoint moves it to the end.
	if err := store.Save("run-a", "plan", engineCheckpoint(t, "run-a", "plan", "notify")); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	latest, err := Latest(store, "run-a")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.NodeID != "plan" || latest.NextNode != "notify" {
		t.Errorf("Latest() = %s -> %s, want plan -> notify", latest.NodeID, latest.NextNode)
	}

	gate, err := At(store, "run-a", "human_gate")
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	if gate.NextNode != "__end__" || string(gate.State) != `{"runId":"run-a","loopCount":2}` {
		t.Errorf("At(human_gate) = %+v", gate)
	}

	if err := store.Save("run-b", "plan", engineCheckpoint(t, "run-b", "plan", "notify")); err != nil {
		t.Fatalf("Save run-b: %v", err)
	}
	runs, err := store.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	sort.Strings(runs)
	if strings.Join(runs, ",") != "run-a,run-b" {
		t.Errorf("Runs() = %v", runs)
	}

	if err := store.Delete("run-a", "plan"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load("run-a", "plan"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete err = %v, want ErrNotFound", err)
	}
	if err := store.Delete("run-a", "plan"); err != nil {
		t.Errorf("second Delete err = %v, want nil", err)
	}

	if err := store.DeleteRun("run-a"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if infos, _ := store.List("run-a"); len(infos) != 0 {
		t.Errorf("List after DeleteRun = %v", infos)
	}
	runs, err = store.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if strings.Join(runs, ",") != "run-b" {
		t.Errorf("Runs() after DeleteRun = %v", runs)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CorruptPayload(t *testing.T) {
	store := NewMemoryStore()
	// Bypass sealing to plant a payload that was never sealed.
	if err := store.sealed.Store.Save("run-x", "human_gate", []byte{0xff, 0x00, 0x13}); err != nil {
		t.Fatalf("raw Save: %v", err)
	}
	if _, err := store.Load("run-x", "human_gate"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() err = %v, want ErrCorrupt", err)
	}
	if _, err := Latest(store, "run-x"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Latest() err = %v, want ErrCorrupt", err)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "checkpoints"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseStore(t, store)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	if err := store.Save("run-x", "plan", engineCheckpoint(t, "run-x", "plan", "process_tickets")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("run-x", "human_gate", engineCheckpoint(t, "run-x", "human_gate", "__end__")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "run-x", "human_gate"+fileExt)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)/2] ^= 0x55
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := store.Load("run-x", "human_gate"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Load() err = %v, want ErrCorrupt", err)
	}
	// The listing must not fall back to the older plan checkpoint.
	if _, err := store.List("run-x"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("List() err = %v, want ErrCorrupt", err)
	}
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	err = store.Save("../escape", "plan", []byte("{}"))
	if err == nil || !strings.Contains(err.Error(), "invalid run id") {
		t.Errorf("Save() err = %v, want invalid run id", err)
	}
	err = store.Save("run", "../plan", []byte("{}"))
	if err == nil || !strings.Contains(err.Error(), "invalid node id") {
		t.Errorf("Save() err = %v, want invalid node id", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestRedisStore(t *testing.T) {
	store := &RedisStore{client: newFakeRedis(), prefix: DefaultRedisPrefix}
	exerciseStore(t, store)
}

func TestRedisStore_SequenceSurvivesNewHandle(t *testing.T) {
	client := newFakeRedis()
	first := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	if err := first.Save("run-1", "plan", engineCheckpoint(t, "run-1", "plan", "notify")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	second := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	if err := second.Save("run-1", "notify", engineCheckpoint(t, "run-1", "notify", "__end__")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	latest, err := Latest(second, "run-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.NodeID != "notify" {
		t.Errorf("Latest() node = %s, want notify", latest.NodeID)
	}
}

func TestStatus_Resumable(t *testing.T) {
	if StatusCompleted.Resumable() {
		t.Error("completed runs should not be resumable")
	}
	for _, s := range []Status{StatusRunning, StatusPaused, StatusFailed} {
		if !s.Resumable() {
			t.Errorf("%s should be resumable", s)
		}
	}
}

// =============================================================================
// Fake Redis
// =============================================================================

type fakeRedis struct {
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: make(map[string]map[string]string)}
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	h := f.hashes[key]
	if h == nil {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	var n int64
	for i := 0; i+1 < len(values); i += 2 {
		field := values[i].(string)
		var v string
		switch val := values[i+1].(type) {
		case []byte:
			v = string(val)
		case string:
			v = val
		}
		if _, ok := h[field]; !ok {
			n++
		}
		h[field] = v
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) HGet(_ context.Context, key, field string) *redis.StringCmd {
	v, ok := f.hashes[key][field]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := make(map[string]string, len(f.hashes[key]))
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeRedis) HDel(_ context.Context, key string, fields ...string) *redis.IntCmd {
	var n int64
	for _, field := range fields {
		if _, ok := f.hashes[key][field]; ok {
			delete(f.hashes[key], field)
			n++
		}
	}
	if len(f.hashes[key]) == 0 {
		delete(f.hashes, key)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) HIncrBy(_ context.Context, key, field string, incr int64) *redis.IntCmd {
	h := f.hashes[key]
	if h == nil {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	cur, _ := strconv.ParseInt(h[field], 10, 64)
	cur += incr
	h[field] = strconv.FormatInt(cur, 10)
	return redis.NewIntResult(cur, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return redis.NewScanCmdResult(keys, 0, nil)
}

func (f *fakeRedis) Close() error { return nil }
