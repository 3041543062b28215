package card

import (
	"sort"
)

// Store 号码分组存储。
// 不做并发保护，由持有它的游戏会话在锁内访问。
type Store struct {
	groups [groupCount][]Slot
}

// NewStore 创建空存储
func NewStore() *Store {
	return &Store{}
}

// LoadStore 由服务端数据构建存储，各组按 SortOrder 排序
func LoadStore(groups map[GroupKind][]NumberItem) *Store {
	s := NewStore()
	for kind, items := range groups {
		if kind < 0 || kind >= groupCount {
			continue
		}
		slots := make([]Slot, len(items))
		for i, item := range items {
			slots[i] = SlotFromItem(item)
		}
		sort.SliceStable(slots, func(i, j int) bool {
			return slots[i].Content.SortOrder < slots[j].Content.SortOrder
		})
		s.groups[kind] = slots
	}
	return s
}

func (s *Store) valid(kind GroupKind, idx int) bool {
	return kind >= 0 && kind < groupCount && idx >= 0 && idx < len(s.groups[kind])
}

// Len 分组号码数量
func (s *Store) Len(kind GroupKind) int {
	if kind < 0 || kind >= groupCount {
		return 0
	}
	return len(s.groups[kind])
}

// Slot 获取单个号码格
func (s *Store) Slot(kind GroupKind, idx int) (Slot, bool) {
	if !s.valid(kind, idx) {
		return Slot{}, false
	}
	return s.groups[kind][idx], true
}

// Slots 获取分组号码格副本
func (s *Store) Slots(kind GroupKind) []Slot {
	if kind < 0 || kind >= groupCount {
		return nil
	}
	return append([]Slot(nil), s.groups[kind]...)
}

// States 获取分组状态数组副本
func (s *Store) States(kind GroupKind) []RevealState {
	if kind < 0 || kind >= groupCount {
		return nil
	}
	states := make([]RevealState, len(s.groups[kind]))
	for i, slot := range s.groups[kind] {
		states[i] = slot.State
	}
	return states
}

// Items 获取分组号码（服务端格式）副本
func (s *Store) Items(kind GroupKind) []NumberItem {
	if kind < 0 || kind >= groupCount {
		return nil
	}
	items := make([]NumberItem, len(s.groups[kind]))
	for i, slot := range s.groups[kind] {
		items[i] = slot.Item()
	}
	return items
}

// SetState 设置号码格状态
func (s *Store) SetState(kind GroupKind, idx int, state RevealState) bool {
	if !s.valid(kind, idx) {
		return false
	}
	s.groups[kind][idx].State = state
	return true
}

// SetWinner 设置号码格中奖标记
func (s *Store) SetWinner(kind GroupKind, idx int, winner bool) bool {
	if !s.valid(kind, idx) {
		return false
	}
	s.groups[kind][idx].Content.Winner = winner
	return true
}

// IndexOf 按号码ID查找位置，未找到返回-1
func (s *Store) IndexOf(kind GroupKind, numberID string) int {
	if kind < 0 || kind >= groupCount {
		return -1
	}
	for i, slot := range s.groups[kind] {
		if slot.Content.NumberID == numberID {
			return i
		}
	}
	return -1
}

// GroupRevealed 分组是否全部刮开（空分组视为已刮开）
func (s *Store) GroupRevealed(kind GroupKind) bool {
	if kind < 0 || kind >= groupCount {
		return true
	}
	for _, slot := range s.groups[kind] {
		if !slot.Revealed() {
			return false
		}
	}
	return true
}

// AllRevealed 所有启用分组是否全部刮开
func (s *Store) AllRevealed(flags FeatureFlags) bool {
	for _, kind := range flags.EnabledGroups() {
		if !s.GroupRevealed(kind) {
			return false
		}
	}
	return true
}

// AnyRevealed 是否有任意号码已刮开
func (s *Store) AnyRevealed() bool {
	for _, group := range s.groups {
		for _, slot := range group {
			if slot.Revealed() {
				return true
			}
		}
	}
	return false
}

// SameRevealSet 与服务端数据的刮开集合是否一致
func (s *Store) SameRevealSet(groups map[GroupKind][]NumberItem) bool {
	for _, kind := range AllGroups {
		items := groups[kind]
		if len(items) != len(s.groups[kind]) {
			return false
		}
		for _, item := range items {
			idx := s.IndexOf(kind, item.NumberID)
			if idx < 0 || s.groups[kind][idx].Revealed() != item.Revealed {
				return false
			}
		}
	}
	return true
}

// Snapshot 存储的完整深拷贝
type Snapshot [groupCount][]Slot

// Snapshot 获取快照
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	for k, group := range s.groups {
		if group != nil {
			snap[k] = append([]Slot(nil), group...)
		}
	}
	return snap
}

// Restore 用快照整体覆盖存储
func (s *Store) Restore(snap Snapshot) {
	for k, group := range snap {
		if group == nil {
			s.groups[k] = nil
			continue
		}
		s.groups[k] = append([]Slot(nil), group...)
	}
}

// Equal 快照逐格比较
func (snap Snapshot) Equal(other Snapshot) bool {
	for k := range snap {
		if len(snap[k]) != len(other[k]) {
			return false
		}
		for i := range snap[k] {
			if snap[k][i] != other[k][i] {
				return false
			}
		}
	}
	return true
}
