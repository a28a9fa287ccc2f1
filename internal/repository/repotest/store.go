// Package repotest はサービス層のテスト用に、repositoryの各インターフェースを
// メモリ上で満たすストアを提供する。
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/devicehub/internal/model"
	"github.com/hitoshi/devicehub/internal/repository"
)

// Store はユーザー・デバイス・Webhook台帳・商品をメモリ上に保持する。
// 一意制約と所有者スコープはPostgreSQL実装と同じ振る舞いをする。
type Store struct {
	mu       sync.Mutex
	users    map[string]model.User
	devices  []model.Device
	events   map[string]model.ProcessedWebhookEvent
	products []model.Product

	// Err が設定されている場合、すべての操作がこのエラーを返す。
	Err error
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		users:  make(map[string]model.User),
		events: make(map[string]model.ProcessedWebhookEvent),
	}
}

// Users はUserRepositoryとしてのビューを返す。
func (s *Store) Users() repository.UserRepository { return userView{s} }

// Devices はDeviceRepositoryとしてのビューを返す。
func (s *Store) Devices() repository.DeviceRepository { return deviceView{s} }

// WebhookEvents はWebhookEventRepositoryとしてのビューを返す。
func (s *Store) WebhookEvents() repository.WebhookEventRepository { return eventView{s} }

// Products はProductRepositoryとしてのビューを返す。
func (s *Store) Products() repository.ProductRepository { return productView{s} }

// AddProduct は商品を追加する。
func (s *Store) AddProduct(p model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, p)
}

// ProcessedCount は台帳に記録されたイベント数を返す。
func (s *Store) ProcessedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

type userView struct{ s *Store }

func (v userView) FindByID(_ context.Context, id string) (*model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	u, ok := v.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (v userView) FindByEmail(_ context.Context, email string) (*model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	for _, u := range v.s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (v userView) FindByBillingSubscriptionRef(_ context.Context, ref string) (*model.User, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	if ref == "" {
		return nil, nil
	}
	for _, u := range v.s.users {
		if u.Subscription.BillingSubscriptionRef == ref {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (v userView) Create(_ context.Context, user *model.User) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return v.s.Err
	}
	for _, u := range v.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if _, ok := v.s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	v.s.users[user.ID] = *user
	return nil
}

func (v userView) UpdateSubscription(_ context.Context, userID string, sub model.Subscription) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return v.s.Err
	}
	u, ok := v.s.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Subscription = sub
	u.UpdatedAt = time.Now().UTC()
	v.s.users[userID] = u
	return nil
}

func (v userView) DeleteByID(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return v.s.Err
	}
	if _, ok := v.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(v.s.users, id)
	kept := v.s.devices[:0]
	for _, d := range v.s.devices {
		if d.UserID != id {
			kept = append(kept, d)
		}
	}
	v.s.devices = kept
	return nil
}

type deviceView struct{ s *Store }

func (v deviceView) countLocked(userID string) int {
	n := 0
	for _, d := range v.s.devices {
		if d.UserID == userID {
			n++
		}
	}
	return n
}

func (v deviceView) CountByUserID(_ context.Context, userID string) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return 0, v.s.Err
	}
	return v.countLocked(userID), nil
}

func (v deviceView) ListByUserID(_ context.Context, userID string) ([]*model.Device, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	out := make([]*model.Device, 0)
	for _, d := range v.s.devices {
		if d.UserID == userID {
			d := d
			out = append(out, &d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (v deviceView) FindByUserAndDeviceID(_ context.Context, userID, deviceID string) (*model.Device, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	for _, d := range v.s.devices {
		if d.UserID == userID && d.DeviceID == deviceID {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (v deviceView) ExistsByDeviceID(_ context.Context, deviceID string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return false, v.s.Err
	}
	for _, d := range v.s.devices {
		if d.DeviceID == deviceID {
			return true, nil
		}
	}
	return false, nil
}

func (v deviceView) CreateWithinQuota(_ context.Context, device *model.Device, quota int) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return false, v.s.Err
	}
	if _, ok := v.s.users[device.UserID]; !ok {
		return false, repository.ErrNotFound
	}
	if v.countLocked(device.UserID) >= quota {
		return false, nil
	}
	for _, d := range v.s.devices {
		if d.DeviceID == device.DeviceID {
			return false, repository.ErrDuplicate
		}
	}
	v.s.devices = append(v.s.devices, *device)
	return true, nil
}

func (v deviceView) UpdateStatus(_ context.Context, userID, deviceID, status string, lastSeen time.Time) (*model.Device, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	for i, d := range v.s.devices {
		if d.UserID == userID && d.DeviceID == deviceID {
			floor := d.LastSeen.Add(time.Microsecond)
			if lastSeen.Before(floor) {
				lastSeen = floor
			}
			d.Status = status
			d.LastSeen = lastSeen
			v.s.devices[i] = d
			return &d, nil
		}
	}
	return nil, nil
}

func (v deviceView) Delete(_ context.Context, userID, deviceID string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return false, v.s.Err
	}
	for i, d := range v.s.devices {
		if d.UserID == userID && d.DeviceID == deviceID {
			v.s.devices = append(v.s.devices[:i], v.s.devices[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type eventView struct{ s *Store }

func (v eventView) IsProcessed(_ context.Context, eventID string) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return false, v.s.Err
	}
	_, ok := v.s.events[eventID]
	return ok, nil
}

func (v eventView) MarkProcessed(_ context.Context, event *model.ProcessedWebhookEvent) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return v.s.Err
	}
	if _, ok := v.s.events[event.EventID]; !ok {
		v.s.events[event.EventID] = *event
	}
	return nil
}

type productView struct{ s *Store }

func (v productView) List(_ context.Context) ([]*model.Product, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if v.s.Err != nil {
		return nil, v.s.Err
	}
	out := make([]*model.Product, 0, len(v.s.products))
	for _, p := range v.s.products {
		p := p
		out = append(out, &p)
	}
	return out, nil
}
