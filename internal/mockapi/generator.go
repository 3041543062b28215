package mockapi

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/wfunc/instant-win/internal/apiclient"
	"github.com/wfunc/instant-win/internal/game/card"
)

// 卡片布局
const (
	luckyCount   = 3
	userCount    = 6
	match3Count  = 3
	maxNumber    = 40
	luckyHitRate = 0.15
	match3Rate   = 0.1
	bonusRate    = 0.1
	multiRate    = 0.2
)

// userPrizeTable 玩家号码奖品，值为投注额的倍数
var userPrizeTable = []struct {
	id     string
	ratio  int64
	weight int
}{
	{"x1", 1, 50},
	{"x2", 2, 25},
	{"x5", 5, 15},
	{"x10", 10, 7},
	{"x50", 50, 3},
}

// match3Symbols 三连符号及其奖品倍数
var match3Symbols = []struct {
	id    string
	ratio int64
}{
	{"cherry", 2},
	{"bell", 5},
	{"seven", 35},
}

var multipliers = []int{2, 3, 5}

// CardGenerator 按场次随机生成卡片号码，同一种子生成的序列相同
type CardGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewCardGenerator 创建生成器
func NewCardGenerator(seed int64) *CardGenerator {
	return &CardGenerator{rnd: rand.New(rand.NewSource(seed))}
}

// Generate 生成一张未刮开的卡片，同时返回全部刮开后的派彩（分）
func (g *CardGenerator) Generate(sess apiclient.Session) (apiclient.GameplayState, int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	wager := card.WagerCents(sess.Price)
	flags := card.FlagsFromGames(sess.Definition.Config.OptionalGames)

	var state apiclient.GameplayState
	if flags.Reveal {
		lucky := g.distinctValues(luckyCount)
		state.LuckyNumbers = make([]card.NumberItem, len(lucky))
		for i, v := range lucky {
			state.LuckyNumbers[i] = g.item(i, strconv.Itoa(v), card.Prize{})
		}
		state.UserNumbers = make([]card.NumberItem, userCount)
		for i := range state.UserNumbers {
			v := g.nonMember(lucky)
			if g.rnd.Float64() < luckyHitRate {
				v = lucky[g.rnd.Intn(len(lucky))]
			}
			prize := g.userPrize(wager)
			state.UserNumbers[i] = g.item(i, strconv.Itoa(v), prize)
		}
	}
	if flags.Match {
		symbols := make([]int, match3Count)
		if g.rnd.Float64() < match3Rate {
			s := g.rnd.Intn(len(match3Symbols))
			for i := range symbols {
				symbols[i] = s
			}
		} else {
			// 至少一个不同
			for i := range symbols {
				symbols[i] = g.rnd.Intn(len(match3Symbols))
			}
			if symbols[0] == symbols[1] && symbols[1] == symbols[2] {
				symbols[2] = (symbols[2] + 1) % len(match3Symbols)
			}
		}
		state.Match3 = make([]card.NumberItem, match3Count)
		for i, s := range symbols {
			sym := match3Symbols[s]
			state.Match3[i] = g.item(i, sym.id, card.Prize{ID: sym.id, Value: sym.ratio * wager})
		}
	}
	if flags.Generic {
		bonus := g.item(0, "bonus", card.Prize{ID: "bonus", Value: 2 * wager})
		bonus.Winner = g.rnd.Float64() < bonusRate
		state.BonusNumbers = []card.NumberItem{bonus}
	}
	if flags.GenericMultiplier {
		m := multipliers[g.rnd.Intn(len(multipliers))]
		item := g.item(0, "x"+strconv.Itoa(m), card.Prize{ID: "multiplier", Multiplier: m})
		item.Winner = g.rnd.Float64() < multiRate
		state.Multipliers = []card.NumberItem{item}
	}

	payout := evaluateRevealed(&state)
	return state, payout
}

func (g *CardGenerator) item(order int, value string, prize card.Prize) card.NumberItem {
	return card.NumberItem{
		NumberID:    uuid.NewString(),
		SortOrder:   order,
		NumberValue: value,
		Prize:       prize,
	}
}

func (g *CardGenerator) distinctValues(n int) []int {
	perm := g.rnd.Perm(maxNumber)
	out := make([]int, n)
	for i := range out {
		out[i] = perm[i] + 1
	}
	return out
}

func (g *CardGenerator) nonMember(set []int) int {
	for {
		v := g.rnd.Intn(maxNumber) + 1
		hit := false
		for _, s := range set {
			if s == v {
				hit = true
				break
			}
		}
		if !hit {
			return v
		}
	}
}

func (g *CardGenerator) userPrize(wager int64) card.Prize {
	total := 0
	for _, p := range userPrizeTable {
		total += p.weight
	}
	r := g.rnd.Intn(total)
	for _, p := range userPrizeTable {
		if r < p.weight {
			return card.Prize{ID: p.id, Value: p.ratio * wager}
		}
		r -= p.weight
	}
	return card.Prize{ID: userPrizeTable[0].id, Value: wager}
}

// evaluateRevealed 以全部刮开的状态判定中奖，并写回号码的中奖标记
func evaluateRevealed(state *apiclient.GameplayState) int64 {
	groups := state.Groups()
	for kind, items := range groups {
		revealed := make([]card.NumberItem, len(items))
		for i, item := range items {
			item.Revealed = true
			revealed[i] = item
		}
		groups[kind] = revealed
	}
	store := card.LoadStore(groups)
	e := card.Evaluate(store)

	for _, kind := range []card.GroupKind{card.GroupLucky, card.GroupUser, card.GroupMatch3} {
		items := state.Items(kind)
		for i := range items {
			items[i].Winner = e.IsWinner(kind, i)
		}
	}
	return card.TotalPrize(store, e)
}

func newInstanceID() string {
	return uuid.NewString()
}
