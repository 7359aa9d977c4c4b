package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/shiksha/internal/model"
	"github.com/roach88/shiksha/internal/remote"
)

// FakeRemote is an in-memory remote.Adapter.
//
// Uploads are applied once per item id, the way an idempotent backend
// behaves, and every submission is recorded so tests can tell duplicates
// from unique applies. Failures are scripted per item or globally.
type FakeRemote struct {
	mu sync.Mutex

	applied     map[string]model.OutboxItem
	submissions []string
	scripted    map[string][]error
	uploadErr   error
	onUpload    func(ctx context.Context, item model.OutboxItem) error

	entries    map[string]model.CatalogEntry
	manifest   map[string]int64
	curriculum map[string]model.CurriculumRecord
	assets     map[string][]byte
	assetErrs  map[string]error
	fetches    map[string]int
}

var _ remote.Adapter = (*FakeRemote)(nil)

// NewFakeRemote creates an empty backend.
func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		applied:    map[string]model.OutboxItem{},
		scripted:   map[string][]error{},
		entries:    map[string]model.CatalogEntry{},
		manifest:   map[string]int64{},
		curriculum: map[string]model.CurriculumRecord{},
		assets:     map[string][]byte{},
		assetErrs:  map[string]error{},
		fetches:    map[string]int{},
	}
}

// FailUpload makes the next uploads of itemID return errs, one per call.
func (f *FakeRemote) FailUpload(itemID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[itemID] = append(f.scripted[itemID], errs...)
}

// FailAllUploads makes every upload return err until cleared with nil.
func (f *FakeRemote) FailAllUploads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErr = err
}

// OnUpload installs a hook run before each upload is applied. A non-nil
// return is the upload's result and the item is not applied.
func (f *FakeRemote) OnUpload(fn func(ctx context.Context, item model.OutboxItem) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpload = fn
}

func (f *FakeRemote) UploadProgress(ctx context.Context, item model.OutboxItem) error {
	f.mu.Lock()
	hook := f.onUpload
	f.submissions = append(f.submissions, item.ID)
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, item); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.scripted[item.ID]; len(errs) > 0 {
		f.scripted[item.ID] = errs[1:]
		if errs[0] != nil {
			return errs[0]
		}
	}
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if _, ok := f.applied[item.ID]; !ok {
		f.applied[item.ID] = item
	}
	return nil
}

// Applied returns the ids applied server-side, sorted.
func (f *FakeRemote) Applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.applied))
	for id := range f.applied {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AppliedItem returns the first applied copy of an item.
func (f *FakeRemote) AppliedItem(id string) (model.OutboxItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.applied[id]
	return it, ok
}

// Submissions returns every upload attempt in order, duplicates included.
func (f *FakeRemote) Submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.submissions))
	copy(out, f.submissions)
	return out
}

// Publish makes e available and lists it in the manifest at e.Version.
func (f *FakeRemote) Publish(entries ...model.CatalogEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entries {
		f.entries[e.ID] = e
		f.manifest[e.ID] = e.Version
	}
}

// SetManifestVersion overrides the version the manifest reports for id.
func (f *FakeRemote) SetManifestVersion(id string, version int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.manifest[id] = version
}

// PutAsset serves data for assetID.
func (f *FakeRemote) PutAsset(assetID string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets[assetID] = data
	delete(f.assetErrs, assetID)
}

// FailAsset makes fetches of assetID return err.
func (f *FakeRemote) FailAsset(assetID string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assetErrs[assetID] = err
}

// AssetFetches returns how many times assetID was requested.
func (f *FakeRemote) AssetFetches(assetID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[assetID]
}

// PutCurriculum serves rec for its subject and class level.
func (f *FakeRemote) PutCurriculum(rec model.CurriculumRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.curriculum[curriculumKey(rec.Subject, rec.ClassLevel)] = rec
}

func curriculumKey(subject string, classLevel int) string {
	return fmt.Sprintf("%s/%d", model.NormalizeSubject(subject), classLevel)
}

func (f *FakeRemote) FetchCatalogManifest(ctx context.Context, subjects []string) ([]remote.ManifestEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, s := range subjects {
		want[model.NormalizeSubject(s)] = true
	}
	out := []remote.ManifestEntry{}
	for id, v := range f.manifest {
		if len(want) > 0 && !want[model.NormalizeSubject(f.entries[id].Subject)] {
			continue
		}
		out = append(out, remote.ManifestEntry{EntryID: id, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryID < out[j].EntryID })
	return out, nil
}

func (f *FakeRemote) FetchCatalogEntries(ctx context.Context, ids []string) ([]model.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.CatalogEntry{}
	for _, id := range ids {
		if e, ok := f.entries[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *FakeRemote) FetchCurriculum(ctx context.Context, subject string, classLevel int, topic string) (model.CurriculumRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.curriculum[curriculumKey(subject, classLevel)]
	if !ok {
		return model.CurriculumRecord{}, model.NewPermanentError("fake.FetchCurriculum", "no curriculum for "+curriculumKey(subject, classLevel))
	}
	return rec, nil
}

func (f *FakeRemote) FetchAsset(ctx context.Context, assetID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[assetID]++
	if err := f.assetErrs[assetID]; err != nil {
		return nil, err
	}
	data, ok := f.assets[assetID]
	if !ok {
		return nil, model.NewPermanentError("fake.FetchAsset", "no asset "+assetID)
	}
	return data, nil
}
