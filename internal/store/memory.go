package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"datahub/internal/model"
)

// Memory: хранилище в памяти. Писатели сериализуются мьютексом,
// записи копятся на копии состояния и публикуются только при успехе fn.
type Memory struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memState struct {
	nodes  map[int64]*model.Node
	files  map[int64]*model.DataFile
	users  map[int64]*model.User
	nextID int64
}

func NewMemory() *Memory {
	return &Memory{
		state: &memState{
			nodes: make(map[int64]*model.Node),
			files: make(map[int64]*model.DataFile),
			users: make(map[int64]*model.User),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// copy: неглубокая копия карт; сами записи не мутируются на месте.
func (s *memState) copy() *memState {
	cp := &memState{
		nodes:  make(map[int64]*model.Node, len(s.nodes)),
		files:  make(map[int64]*model.DataFile, len(s.files)),
		users:  make(map[int64]*model.User, len(s.users)),
		nextID: s.nextID,
	}
	for k, v := range s.nodes {
		cp.nodes[k] = v
	}
	for k, v := range s.files {
		cp.files[k] = v
	}
	for k, v := range s.users {
		cp.users[k] = v
	}
	return cp
}

func (m *Memory) ReadTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(&memTx{st: m.state, now: m.now})
}

func (m *Memory) WriteTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.copy()
	if err := fn(&memTx{st: staged, writable: true, now: m.now}); err != nil {
		return err
	}
	// отменённый запрос не коммитим
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = staged
	return nil
}

type memTx struct {
	st       *memState
	writable bool
	now      func() time.Time
}

func (t *memTx) Nodes() NodeStore { return memNodes{t} }
func (t *memTx) Files() FileStore { return memFiles{t} }
func (t *memTx) Users() UserStore { return memUsers{t} }

func (t *memTx) nextID() int64 {
	t.st.nextID++
	return t.st.nextID
}

// ==== Узлы ====

type memNodes struct{ tx *memTx }

func (s memNodes) FindByID(_ context.Context, id int64) (*model.Node, error) {
	n, ok := s.tx.st.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return n.Clone(), nil
}

func (s memNodes) collect(pred func(*model.Node) bool) []*model.Node {
	out := make([]*model.Node, 0)
	for _, n := range s.tx.st.nodes {
		if pred(n) {
			out = append(out, n.Clone())
		}
	}
	SortNodes(out)
	return out
}

func (s memNodes) FindRoots(context.Context) ([]*model.Node, error) {
	return s.collect(func(n *model.Node) bool { return n.ParentID == nil }), nil
}

func (s memNodes) FindChildren(_ context.Context, parentID int64) ([]*model.Node, error) {
	return s.collect(func(n *model.Node) bool { return n.ParentID != nil && *n.ParentID == parentID }), nil
}

func (s memNodes) FindAll(context.Context) ([]*model.Node, error) {
	return s.collect(func(*model.Node) bool { return true }), nil
}

func (s memNodes) FindByNameSubstring(_ context.Context, sub string) ([]*model.Node, error) {
	return s.collect(func(n *model.Node) bool { return ContainsFold(n.Name, sub) }), nil
}

func (s memNodes) FindAncestors(_ context.Context, id int64) ([]*model.Node, error) {
	n, ok := s.tx.st.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	var out []*model.Node
	// глубина ограничена числом узлов
	for guard := len(s.tx.st.nodes); n.ParentID != nil && guard > 0; guard-- {
		p, ok := s.tx.st.nodes[*n.ParentID]
		if !ok {
			break
		}
		out = append(out, p.Clone())
		n = p
	}
	return out, nil
}

func (s memNodes) FindDescendants(_ context.Context, id int64) ([]*model.Node, error) {
	if _, ok := s.tx.st.nodes[id]; !ok {
		return nil, ErrNotFound
	}
	children := make(map[int64][]*model.Node)
	for _, n := range s.tx.st.nodes {
		if n.ParentID != nil {
			children[*n.ParentID] = append(children[*n.ParentID], n)
		}
	}
	var out []*model.Node
	seen := map[int64]bool{id: true}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c.Clone())
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}

func (s memNodes) ExistsSiblingName(_ context.Context, name string, parentID, excludeID *int64) (bool, error) {
	for _, n := range s.tx.st.nodes {
		if excludeID != nil && n.ID == *excludeID {
			continue
		}
		if n.Name == name && model.SameParent(n.ParentID, parentID) {
			return true, nil
		}
	}
	return false, nil
}

func (s memNodes) CountChildren(_ context.Context, parentID int64) (int64, error) {
	var c int64
	for _, n := range s.tx.st.nodes {
		if n.ParentID != nil && *n.ParentID == parentID {
			c++
		}
	}
	return c, nil
}

func (s memNodes) CountFilesAnchored(ctx context.Context, id int64) (int64, error) {
	return memFiles(s).CountByAnchor(ctx, id)
}

func (s memNodes) Insert(ctx context.Context, n *model.Node) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	if dup, _ := s.ExistsSiblingName(ctx, n.Name, n.ParentID, nil); dup {
		return ErrDuplicate
	}
	now := s.tx.now()
	n.ID = s.tx.nextID()
	n.CreatedAt, n.UpdatedAt = now, now
	s.tx.st.nodes[n.ID] = n.Clone()
	return nil
}

func (s memNodes) Update(ctx context.Context, n *model.Node) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	old, ok := s.tx.st.nodes[n.ID]
	if !ok {
		return ErrNotFound
	}
	if dup, _ := s.ExistsSiblingName(ctx, n.Name, n.ParentID, &n.ID); dup {
		return ErrDuplicate
	}
	n.CreatedAt, n.CreatedBy = old.CreatedAt, old.CreatedBy
	n.UpdatedAt = s.tx.now()
	s.tx.st.nodes[n.ID] = n.Clone()
	return nil
}

func (s memNodes) DeleteByID(_ context.Context, id int64) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	if _, ok := s.tx.st.nodes[id]; !ok {
		return ErrNotFound
	}
	delete(s.tx.st.nodes, id)
	return nil
}

// ==== Файлы ====

type memFiles struct{ tx *memTx }

func (s memFiles) FindByID(_ context.Context, id int64) (*model.DataFile, error) {
	f, ok := s.tx.st.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f.Clone(), nil
}

func (s memFiles) filter(pred func(*model.DataFile) bool) []*model.DataFile {
	out := make([]*model.DataFile, 0)
	for _, f := range s.tx.st.files {
		if pred(f) {
			out = append(out, f.Clone())
		}
	}
	SortFiles(out, NewestFirst)
	return out
}

func (s memFiles) FindByAnchor(_ context.Context, anchorID int64) ([]*model.DataFile, error) {
	return s.filter(func(f *model.DataFile) bool { return f.AnchorID == anchorID }), nil
}

func (s memFiles) FindByOwner(_ context.Context, ownerID int64) ([]*model.DataFile, error) {
	return s.filter(func(f *model.DataFile) bool { return f.OwnerID == ownerID }), nil
}

func (s memFiles) FindByAccessLevel(_ context.Context, level model.AccessLevel) ([]*model.DataFile, error) {
	return s.filter(func(f *model.DataFile) bool { return f.AccessLevel == level }), nil
}

func (s memFiles) FindByNameSubstring(_ context.Context, sub string) ([]*model.DataFile, error) {
	return s.filter(func(f *model.DataFile) bool { return ContainsFold(f.Name, sub) }), nil
}

func (s memFiles) FindByFingerprint(_ context.Context, fp string) ([]*model.DataFile, error) {
	fp = strings.ToLower(fp)
	return s.filter(func(f *model.DataFile) bool { return f.Fingerprint == fp }), nil
}

func (s memFiles) ExistsNameInAnchor(_ context.Context, name string, anchorID int64, excludeID *int64) (bool, error) {
	for _, f := range s.tx.st.files {
		if excludeID != nil && f.ID == *excludeID {
			continue
		}
		if f.AnchorID == anchorID && f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s memFiles) count(pred func(*model.DataFile) bool) int64 {
	var c int64
	for _, f := range s.tx.st.files {
		if pred(f) {
			c++
		}
	}
	return c
}

func (s memFiles) CountAll(context.Context) (int64, error) {
	return int64(len(s.tx.st.files)), nil
}

func (s memFiles) CountByAccessLevel(_ context.Context, level model.AccessLevel) (int64, error) {
	return s.count(func(f *model.DataFile) bool { return f.AccessLevel == level }), nil
}

func (s memFiles) CountByAnchor(_ context.Context, anchorID int64) (int64, error) {
	return s.count(func(f *model.DataFile) bool { return f.AnchorID == anchorID }), nil
}

func (s memFiles) CountByOwner(_ context.Context, ownerID int64) (int64, error) {
	return s.count(func(f *model.DataFile) bool { return f.OwnerID == ownerID }), nil
}

func (s memFiles) Find(_ context.Context, q FileQuery) ([]*model.DataFile, int64, error) {
	all := make([]*model.DataFile, 0)
	for _, f := range s.tx.st.files {
		if q.Match(f) {
			all = append(all, f)
		}
	}
	SortFiles(all, q.Sort)
	total := int64(len(all))

	start := q.Offset
	if start < 0 {
		start = 0
	}
	if start > len(all) {
		start = len(all)
	}
	end := len(all)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	page := make([]*model.DataFile, 0, end-start)
	for _, f := range all[start:end] {
		page = append(page, f.Clone())
	}
	return page, total, nil
}

func (s memFiles) Insert(ctx context.Context, f *model.DataFile) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	if dup, _ := s.ExistsNameInAnchor(ctx, f.Name, f.AnchorID, nil); dup {
		return ErrDuplicate
	}
	now := s.tx.now()
	f.ID = s.tx.nextID()
	f.CreatedAt, f.UpdatedAt = now, now
	s.tx.st.files[f.ID] = f.Clone()
	return nil
}

func (s memFiles) Update(ctx context.Context, f *model.DataFile) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	old, ok := s.tx.st.files[f.ID]
	if !ok {
		return ErrNotFound
	}
	if dup, _ := s.ExistsNameInAnchor(ctx, f.Name, f.AnchorID, &f.ID); dup {
		return ErrDuplicate
	}
	f.CreatedAt, f.CreatedBy = old.CreatedAt, old.CreatedBy
	f.UpdatedAt = s.tx.now()
	s.tx.st.files[f.ID] = f.Clone()
	return nil
}

func (s memFiles) DeleteByID(_ context.Context, id int64) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	if _, ok := s.tx.st.files[id]; !ok {
		return ErrNotFound
	}
	delete(s.tx.st.files, id)
	return nil
}

// ==== Пользователи ====

type memUsers struct{ tx *memTx }

func cloneUser(u *model.User) *model.User {
	cp := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		cp.LastLoginAt = &t
	}
	return &cp
}

func (s memUsers) FindByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := s.tx.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s memUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range s.tx.st.users {
		if u.Username == username {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s memUsers) ExistsUsername(ctx context.Context, username string) (bool, error) {
	_, err := s.FindByUsername(ctx, username)
	return err == nil, nil
}

func (s memUsers) ExistsEmail(_ context.Context, email string) (bool, error) {
	for _, u := range s.tx.st.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s memUsers) Insert(ctx context.Context, u *model.User) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	if dup, _ := s.ExistsUsername(ctx, u.Username); dup {
		return ErrDuplicate
	}
	if dup, _ := s.ExistsEmail(ctx, u.Email); dup && u.Email != "" {
		return ErrDuplicate
	}
	now := s.tx.now()
	u.ID = s.tx.nextID()
	u.CreatedAt, u.UpdatedAt = now, now
	s.tx.st.users[u.ID] = cloneUser(u)
	return nil
}

func (s memUsers) Update(_ context.Context, u *model.User) error {
	if !s.tx.writable {
		return ErrReadOnly
	}
	old, ok := s.tx.st.users[u.ID]
	if !ok {
		return ErrNotFound
	}
	u.CreatedAt, u.CreatedBy = old.CreatedAt, old.CreatedBy
	u.UpdatedAt = s.tx.now()
	s.tx.st.users[u.ID] = cloneUser(u)
	return nil
}
