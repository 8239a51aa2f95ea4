package planner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sw965/texplore/mathx/randx"
	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/ql"
	"github.com/sw965/texplore/state"
	"github.com/sw965/texplore/ucb"
)

type rollout struct {
	actual []float64
	h      state.Handle
	hist   state.History
}

// searchLoop はキャンセルされるまでロールアウトを繰り返す。
func (p *ParallelETUCT) searchLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		r, ok := p.pickRoot()
		if !ok || !p.hasModel() {
			time.Sleep(time.Millisecond)
			continue
		}
		if _, err := p.uctSearch(r.actual, r.h, 0, r.hist); err != nil {
			return err
		}
		rolloutsTotal.Inc()
		runtime.Gosched()
	}
	return nil
}

// pickRoot は計画対象の状態が最近設定されていればそれを、そうでなければ既知の状態からランダムに選ぶ。
func (p *ParallelETUCT) pickRoot() (rollout, bool) {
	p.rootMu.Lock()
	if p.root != state.None && time.Since(p.rootSetAt) < rootTimeout && p.rootRollouts < p.cfg.MaxIterations {
		p.rootRollouts++
		r := rollout{actual: p.rootActual, h: p.root, hist: p.rootHistory}
		p.rootMu.Unlock()
		return r, true
	}
	p.rootMu.Unlock()

	h, ok := p.space.Random(p.searchRng)
	if !ok {
		return rollout{}, false
	}
	return rollout{actual: p.space.Vector(h), h: h, hist: p.currentHistory()}, true
}

func (p *ParallelETUCT) selectAction(info *stateInfo) int {
	vs := ucb.Values(ucb.Standard, info.q, p.rewardBound, info.visits, info.actions)
	best := 0
	for a := 1; a < len(vs); a++ {
		if vs[a] > vs[best] {
			best = a
		}
	}
	return best
}

// modelInput は正準状態のベクトルに行動履歴の one-hot 表現を連結する。
func (p *ParallelETUCT) modelInput(h state.Handle, hist state.History) []float64 {
	return hist.Augment(p.space.Vector(h), p.cfg.NumActions)
}

func (p *ParallelETUCT) queryModel(input []float64, a int) (mdp.StateActionInfo, error) {
	p.liveMu.RLock()
	m := p.model
	frame := p.lastUpdate
	if m == nil {
		p.liveMu.RUnlock()
		return mdp.StateActionInfo{}, ErrNoModel
	}
	sa, err := m.GetStateActionInfo(input, a)
	p.liveMu.RUnlock()
	if err != nil {
		return sa, fmt.Errorf("%w: %w", mdp.ErrInconsistentModel, err)
	}
	if err := mdp.ValidateTransitions(&sa); err != nil {
		return sa, err
	}
	sa.FrameUpdated = frame
	return sa, nil
}

// stateActionInfo はキャッシュ済みの予測を返す。モデルの差し替えより古ければ問い合わせ直す。
func (p *ParallelETUCT) stateActionInfo(h state.Handle, info *stateInfo, a int, hist state.History) (mdp.StateActionInfo, error) {
	key := hist.Key()
	info.modelMu.Lock()
	defer info.modelMu.Unlock()
	if c, ok := info.cache[a][key]; ok && c.sa.FrameUpdated >= p.frame() {
		return c.sa, nil
	}
	sa, err := p.queryModel(p.modelInput(h, hist), a)
	if err != nil {
		return sa, err
	}
	info.cache[a][key] = cached{hist: hist, sa: sa}
	return sa, nil
}

func (p *ParallelETUCT) backup(info *stateInfo, a int, target float64) {
	lr := ql.LearnRate(info.actions[a])
	info.q[a] = ql.UpdateQ(info.q[a], target, lr)
	info.visits++
	info.actions[a]++
}

func (p *ParallelETUCT) sampleNext(sa *mdp.StateActionInfo) ([]float64, bool, error) {
	outcomes := sa.Outcomes()
	if len(outcomes) == 0 {
		return nil, false, nil
	}
	ws := make([]float64, len(outcomes))
	for i, o := range outcomes {
		ws[i] = o.Prob
	}
	i, err := randx.IndexByWeight(ws, p.searchRng)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", mdp.ErrInconsistentModel, err)
	}
	return outcomes[i].Vector, true, nil
}

// uctSearch は1回のロールアウトを深さ優先で進め、この状態から得られた収益を返す。
// 同じロールアウト内で2回目以降に訪れた状態ではバックアップしない。
func (p *ParallelETUCT) uctSearch(actual []float64, h state.Handle, depth int, hist state.History) (float64, error) {
	info := p.info(h)

	if depth > p.cfg.MaxDepth {
		info.infoMu.Lock()
		v := info.maxQ()
		info.infoMu.Unlock()
		return v, nil
	}

	info.infoMu.Lock()
	info.needsUpdate = true
	info.visited++
	a := p.selectAction(info)
	info.infoMu.Unlock()

	sa, err := p.stateActionInfo(h, info, a, hist)
	if err != nil {
		return 0, err
	}

	// 未知の状態行動は楽観的な価値で打ち切る
	if p.cfg.Exploration == Unknown && !sa.Known {
		info.infoMu.Lock()
		p.backup(info, a, p.vmax)
		info.visited--
		info.infoMu.Unlock()
		return p.vmax, nil
	}

	if randx.Bernoulli(sa.TermProb, p.searchRng) {
		info.infoMu.Lock()
		p.backup(info, a, sa.Reward)
		info.visited--
		info.infoMu.Unlock()
		return sa.Reward, nil
	}

	next, ok, err := p.sampleNext(&sa)
	if err != nil {
		return 0, err
	}
	if !ok {
		info.infoMu.Lock()
		p.backup(info, a, sa.Reward)
		info.visited--
		info.infoMu.Unlock()
		return sa.Reward, nil
	}

	nextActual := next
	if p.cfg.TrackActual {
		// 予測は離散化された中心からの相対的な変化として実数の状態に加える
		center := p.space.Vector(h)
		nextActual = make([]float64, len(next))
		for i := range next {
			nextActual[i] = actual[i] + next[i] - center[i]
		}
	}
	if !p.disc.InBounds(nextActual, boundsEps) {
		nextActual = actual
	}
	nextH := p.canonicalize(nextActual)

	v, err := p.uctSearch(nextActual, nextH, depth+1, hist.Push(a))
	if err != nil {
		return 0, err
	}
	newQ := sa.Reward + p.cfg.Gamma*v

	info.infoMu.Lock()
	if info.visited == 1 {
		p.backup(info, a, newQ)
		if p.cfg.Lambda < 1.0 {
			newQ = ql.BlendTrace(p.cfg.Lambda, newQ, info.maxQ())
		}
	}
	info.visited--
	info.infoMu.Unlock()
	return newQ, nil
}
