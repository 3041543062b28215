package card

// savedSlot 事务中保存的单格原值
type savedSlot struct {
	kind GroupKind
	idx  int
	slot Slot
}

// Txn 乐观更新事务：开始时记录原值，远端失败时原样写回。
type Txn struct {
	store *Store
	saved []savedSlot
	done  bool
}

// BeginSlot 以单个号码格为范围开始事务
func (s *Store) BeginSlot(kind GroupKind, idx int) *Txn {
	t := &Txn{store: s}
	if s.valid(kind, idx) {
		t.saved = append(t.saved, savedSlot{kind: kind, idx: idx, slot: s.groups[kind][idx]})
	}
	return t
}

// Begin 以若干整组为范围开始事务，不传分组时覆盖全部分组
func (s *Store) Begin(kinds ...GroupKind) *Txn {
	if len(kinds) == 0 {
		kinds = AllGroups
	}
	t := &Txn{store: s}
	for _, kind := range kinds {
		if kind < 0 || kind >= groupCount {
			continue
		}
		for i, slot := range s.groups[kind] {
			t.saved = append(t.saved, savedSlot{kind: kind, idx: i, slot: slot})
		}
	}
	return t
}

// Apply 在事务范围内同步执行乐观修改
func (t *Txn) Apply(fn func(s *Store)) *Txn {
	if !t.done {
		fn(t.store)
	}
	return t
}

// Rollback 恢复事务开始时的原值
func (t *Txn) Rollback() {
	if t.done {
		return
	}
	for _, saved := range t.saved {
		if t.store.valid(saved.kind, saved.idx) {
			t.store.groups[saved.kind][saved.idx] = saved.slot
		}
	}
	t.done = true
}

// Commit 确认修改，之后 Rollback 无效
func (t *Txn) Commit() {
	t.saved = nil
	t.done = true
}

// Done 事务是否已结束
func (t *Txn) Done() bool {
	return t.done
}
