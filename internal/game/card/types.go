package card

import (
	"strings"
)

// GroupKind 号码分组类型
type GroupKind int

const (
	GroupLucky      GroupKind = iota // 幸运号码（庄家号码）
	GroupUser                        // 玩家号码
	GroupMatch3                      // 三连匹配
	GroupPrizeLot                    // 三连奖品格
	GroupBonus                       // 奖励号码
	GroupMultiplier                  // 倍数格

	groupCount
)

// AllGroups 全部分组，顺序即默认的刮开顺序
var AllGroups = []GroupKind{GroupLucky, GroupUser, GroupMatch3, GroupPrizeLot, GroupBonus, GroupMultiplier}

var groupNames = [groupCount]string{"lucky", "user", "match3", "prizeLot", "bonus", "multiplier"}

func (k GroupKind) String() string {
	if k < 0 || k >= groupCount {
		return "unknown"
	}
	return groupNames[k]
}

// ParseGroupKind 解析分组名（不区分大小写）
func ParseGroupKind(name string) (GroupKind, bool) {
	for i, n := range groupNames {
		if strings.EqualFold(n, name) {
			return GroupKind(i), true
		}
	}
	return 0, false
}

// RevealState 单个号码格的刮开状态
type RevealState int

const (
	StateClosed RevealState = iota
	StateOpen
	StatePrecog
	StateSmallWin
	StateLoser

	// 预留，目前未使用
	StateHighlight
	StateNormalWin
	StateBigWin
)

var revealStateNames = []string{"CLOSED", "OPEN", "PRECOG", "SMALL_WIN", "LOSER", "HIGHLIGHT", "NORMAL_WIN", "BIG_WIN"}

func (s RevealState) String() string {
	if s < 0 || int(s) >= len(revealStateNames) {
		return "UNKNOWN"
	}
	return revealStateNames[s]
}

// Prize 号码格对应的奖品
type Prize struct {
	ID         string `json:"id"`
	Value      int64  `json:"value"` // 分
	Tag        string `json:"tag,omitempty"`
	Multiplier int    `json:"multiplier,omitempty"`
}

// NumberItem 服务端下发的号码格
type NumberItem struct {
	NumberID    string `json:"numberId"`
	SortOrder   int    `json:"sortOrder"`
	NumberValue string `json:"numberValue"`
	Prize       Prize  `json:"prize"`
	Revealed    bool   `json:"revealed"`
	Winner      bool   `json:"winner"`
}

// Content 号码格内容（不含刮开标记）
type Content struct {
	NumberID    string
	SortOrder   int
	NumberValue string
	Prize       Prize
	Winner      bool
}

// Slot 号码格：内容与刮开状态合为一条记录，
// Revealed 由 State 推导，二者不会出现不一致。
type Slot struct {
	Content Content
	State   RevealState
}

// Revealed 是否已刮开
func (s Slot) Revealed() bool {
	return s.State != StateClosed
}

// Item 转换为服务端格式
func (s Slot) Item() NumberItem {
	return NumberItem{
		NumberID:    s.Content.NumberID,
		SortOrder:   s.Content.SortOrder,
		NumberValue: s.Content.NumberValue,
		Prize:       s.Content.Prize,
		Revealed:    s.Revealed(),
		Winner:      s.Content.Winner,
	}
}

// SlotFromItem 由服务端号码格构建Slot
func SlotFromItem(item NumberItem) Slot {
	state := StateClosed
	if item.Revealed {
		state = StateOpen
	}
	return Slot{
		Content: Content{
			NumberID:    item.NumberID,
			SortOrder:   item.SortOrder,
			NumberValue: item.NumberValue,
			Prize:       item.Prize,
			Winner:      item.Winner,
		},
		State: state,
	}
}

// 可选玩法名称（来自场次定义的配置）
const (
	GameGeneric           = "generic"
	GameMatch             = "match"
	GameReveal            = "reveal"
	GameGenericMultiplier = "genericMultiplier"
)

// FeatureFlags 当前卡片启用的玩法
type FeatureFlags struct {
	Generic           bool
	Match             bool
	Reveal            bool
	GenericMultiplier bool
}

// FlagsFromGames 根据场次配置中的可选玩法生成开关
func FlagsFromGames(games []string) FeatureFlags {
	var f FeatureFlags
	for _, g := range games {
		switch {
		case strings.EqualFold(g, GameGeneric):
			f.Generic = true
		case strings.EqualFold(g, GameMatch):
			f.Match = true
		case strings.EqualFold(g, GameReveal):
			f.Reveal = true
		case strings.EqualFold(g, GameGenericMultiplier):
			f.GenericMultiplier = true
		}
	}
	return f
}

// Enabled 分组是否允许刮开
func (f FeatureFlags) Enabled(kind GroupKind) bool {
	switch kind {
	case GroupLucky, GroupUser:
		return f.Reveal
	case GroupMatch3, GroupPrizeLot:
		return f.Match
	case GroupBonus:
		return f.Generic
	case GroupMultiplier:
		return f.GenericMultiplier
	default:
		return false
	}
}

// EnabledGroups 按默认顺序返回启用的分组
func (f FeatureFlags) EnabledGroups() []GroupKind {
	groups := make([]GroupKind, 0, len(AllGroups))
	for _, k := range AllGroups {
		if f.Enabled(k) {
			groups = append(groups, k)
		}
	}
	return groups
}
