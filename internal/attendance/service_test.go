package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/session"
)

// fakeLedger enforces the composite (student_id, session_id) constraint
// atomically inside Insert, mirroring what the Postgres UNIQUE gives us.
type fakeLedger struct {
	mu   sync.Mutex
	byID map[string]Record
	pair map[string]string // student|session -> record id
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{byID: make(map[string]Record), pair: make(map[string]string)}
}

func pairKey(studentID, sessionID string) string { return studentID + "|" + sessionID }

func (f *fakeLedger) Find(_ context.Context, schoolID, studentID, sessionID string) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.pair[pairKey(studentID, sessionID)]
	if !ok {
		return nil, nil
	}
	rec := f.byID[id]
	if rec.SchoolID != schoolID {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeLedger) Insert(_ context.Context, rec Record) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := pairKey(rec.StudentID, rec.SessionID)
	if _, exists := f.pair[key]; exists {
		return Record{}, ErrDuplicate
	}
	rec.CreatedAt = time.Now().UTC()
	f.byID[rec.ID] = rec
	f.pair[key] = rec.ID
	return rec, nil
}

func (f *fakeLedger) Get(_ context.Context, schoolID, id string) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok || rec.SchoolID != schoolID {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeLedger) ListForStudent(_ context.Context, schoolID, studentID string) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []Record
	for _, rec := range f.byID {
		if rec.SchoolID == schoolID && rec.StudentID == studentID {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (f *fakeLedger) ListForLecturer(_ context.Context, schoolID, lecturerID string, filters Filters) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []Record
	for _, rec := range f.byID {
		if rec.SchoolID != schoolID || rec.LecturerID != lecturerID {
			continue
		}
		if filters.Date != nil && !rec.Date.Equal(*filters.Date) {
			continue
		}
		if filters.CourseCode != "" && rec.CourseCode != filters.CourseCode {
			continue
		}
		res = append(res, rec)
	}
	return res, nil
}

func (f *fakeLedger) Delete(_ context.Context, schoolID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byID[id]
	if !ok || rec.SchoolID != schoolID {
		return nil
	}
	delete(f.byID, id)
	delete(f.pair, pairKey(rec.StudentID, rec.SessionID))
	return nil
}

// fakeSessionStore backs a real session.Service so redemption runs against the
// genuine lifecycle rules.
type fakeSessionStore struct {
	mu     sync.Mutex
	byID   map[string]session.Session
	byCode map[string]string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{byID: make(map[string]session.Session), byCode: make(map[string]string)}
}

func (f *fakeSessionStore) Insert(_ context.Context, s session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, taken := f.byCode[s.Code]; taken {
		return session.ErrCodeTaken
	}
	f.byID[s.ID] = s
	f.byCode[s.Code] = s.ID
	return nil
}

func (f *fakeSessionStore) GetByID(_ context.Context, schoolID, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.SchoolID != schoolID {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionStore) GetByCode(_ context.Context, schoolID, code string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byCode[code]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	s := f.byID[id]
	if s.SchoolID != schoolID {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionStore) Close(_ context.Context, schoolID, id string, closedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok || s.SchoolID != schoolID || !s.IsActive {
		return nil
	}
	s.IsActive = false
	s.ClosedAt = &closedAt
	f.byID[id] = s
	return nil
}

func (f *fakeSessionStore) ListForLecturer(_ context.Context, schoolID, lecturerID string) ([]session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []session.Session
	for _, s := range f.byID {
		if s.SchoolID == schoolID && s.LecturerID == lecturerID {
			res = append(res, s)
		}
	}
	return res, nil
}

type fakeDirectory struct {
	mu    sync.Mutex
	names map[string]string
}

func newFakeDirectory(names map[string]string) *fakeDirectory {
	return &fakeDirectory{names: names}
}

func (d *fakeDirectory) FullName(_ context.Context, _, userID string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name, ok := d.names[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return name, nil
}

func (d *fakeDirectory) rename(userID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[userID] = name
}

func today() time.Time {
	y, m, d := time.Now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	sessions *session.Service
	records  *Service
	ledger   *fakeLedger
	dir      *fakeDirectory
}

func newFixture() fixture {
	dir := newFakeDirectory(map[string]string{
		"lec-1":  "Dr. Okafor",
		"stu-1":  "Ada Obi",
		"stu-2":  "Ben Musa",
		"stu-b1": "Cara Dlamini",
	})
	sessions := session.NewService(newFakeSessionStore(), dir, 5)
	ledger := newFakeLedger()
	return fixture{
		sessions: sessions,
		records:  NewService(ledger, sessions, dir),
		ledger:   ledger,
		dir:      dir,
	}
}

func TestMarkByCodeCreatesSnapshotRecord(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)

	rec, err := fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, rec.SessionID)
	assert.Equal(t, "present", rec.Status)
	assert.Equal(t, "CS101", rec.CourseCode)
	assert.Equal(t, "Intro to CS", rec.CourseTitle)
	assert.Equal(t, "Ada Obi", rec.StudentName)
	assert.Equal(t, "Dr. Okafor", rec.LecturerName)
	assert.Equal(t, "lec-1", rec.LecturerID)
	assert.True(t, rec.Date.Equal(sess.Date))
}

func TestMarkBySessionID(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)

	rec, err := fx.records.Mark(ctx, "sch-1", "stu-1", "", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, rec.SessionID)
}

func TestMarkRequiresCodeOrID(t *testing.T) {
	fx := newFixture()
	_, err := fx.records.Mark(context.Background(), "sch-1", "stu-1", "", "")
	assert.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestMarkUnknownCode(t *testing.T) {
	fx := newFixture()
	_, err := fx.records.Mark(context.Background(), "sch-1", "stu-1", "S-ABCDEF", "")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMarkClosedSession(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)
	_, err = fx.sessions.Close(ctx, "sch-1", "lec-1", sess.ID)
	require.NoError(t, err)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	assert.ErrorIs(t, err, session.ErrExpired)
}

func TestMarkExpiredDateWhileStillActive(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today().AddDate(0, 0, -1))
	require.NoError(t, err)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	assert.ErrorIs(t, err, session.ErrExpired)
}

func TestMarkDuplicate(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	require.NoError(t, err)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestConcurrentMarksYieldExactlyOneRecord(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)

	const attempts = 32
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicate):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok, "exactly one mark must win")
	assert.Equal(t, attempts-1, dup)

	existing, err := fx.ledger.Find(ctx, "sch-1", "stu-1", sess.ID)
	require.NoError(t, err)
	require.NotNil(t, existing)
}

func TestSnapshotsSurviveNameChanges(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)
	rec, err := fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	require.NoError(t, err)

	fx.dir.rename("lec-1", "Prof. Okafor-Eze")
	fx.dir.rename("stu-1", "Ada Obi-Nwosu")

	got, err := fx.ledger.Get(ctx, "sch-1", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Okafor", got.LecturerName)
	assert.Equal(t, "Ada Obi", got.StudentName)
}

func TestMarkIsTenantScoped(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)

	// A student from another school cannot see, let alone redeem, the code.
	_, err = fx.records.Mark(ctx, "sch-2", "stu-b1", sess.Code, "")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMarkedStatus(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)

	marked, err := fx.records.Marked(ctx, "sch-1", "stu-1", sess.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	require.NoError(t, err)

	marked, err = fx.records.Marked(ctx, "sch-1", "stu-1", sess.ID)
	require.NoError(t, err)
	assert.True(t, marked)
}

func TestDeleteRequiresOwnership(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)
	rec, err := fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	require.NoError(t, err)

	err = fx.records.Delete(ctx, "sch-1", "lec-2", rec.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	err = fx.records.Delete(ctx, "sch-1", "lec-1", "no-such-record")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fx.records.Delete(ctx, "sch-1", "lec-1", rec.ID))
	_, err = fx.ledger.Get(ctx, "sch-1", rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLecturerRecordFilters(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	cs, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)
	math, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "MTH201", "Linear Algebra", today())
	require.NoError(t, err)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", cs.Code, "")
	require.NoError(t, err)
	_, err = fx.records.Mark(ctx, "sch-1", "stu-2", math.Code, "")
	require.NoError(t, err)

	all, err := fx.records.RecordsForLecturer(ctx, "sch-1", "lec-1", Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyCS, err := fx.records.RecordsForLecturer(ctx, "sch-1", "lec-1", Filters{CourseCode: "CS101"})
	require.NoError(t, err)
	require.Len(t, onlyCS, 1)
	assert.Equal(t, "stu-1", onlyCS[0].StudentID)

	date := today()
	byDate, err := fx.records.RecordsForLecturer(ctx, "sch-1", "lec-1", Filters{Date: &date})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)
}

// Full walkthrough: open, two marks by the same student, close, then a second
// student tries the stale code.
func TestRedemptionEndToEnd(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	sess, err := fx.sessions.Open(ctx, "sch-1", "lec-1", "CS101", "Intro to CS", today())
	require.NoError(t, err)
	assert.Regexp(t, `^S-[0-9A-F]{6}$`, sess.Code)

	rec, err := fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	require.NoError(t, err)
	assert.Equal(t, "present", rec.Status)
	assert.Equal(t, "CS101", rec.CourseCode)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-1", sess.Code, "")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = fx.sessions.Close(ctx, "sch-1", "lec-1", sess.ID)
	require.NoError(t, err)

	_, err = fx.records.Mark(ctx, "sch-1", "stu-2", sess.Code, "")
	assert.ErrorIs(t, err, session.ErrExpired)
}
