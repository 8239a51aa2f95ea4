package planner

import (
	"context"
	"fmt"

	"github.com/sw965/texplore/mdp"
	"github.com/sw965/texplore/state"
)

// learnLoop は経験がキューに入るまで待ち、まとめて取り出してモデルを更新する。
func (p *ParallelETUCT) learnLoop(ctx context.Context) error {
	for {
		p.listMu.Lock()
		for len(p.queue) == 0 && ctx.Err() == nil {
			p.listCond.Wait()
		}
		if ctx.Err() != nil {
			p.listMu.Unlock()
			return nil
		}
		batch := p.queue
		p.queue = nil
		experiencesQueued.Set(0)
		p.listMu.Unlock()

		if _, err := p.trainAndSwap(batch); err != nil {
			return err
		}
	}
}

// trainAndSwap はモデルを複製して学習させ、学習が終わってから差し替える。
// 探索ゴルーチンが学習途中のモデルを見る事はない。
func (p *ParallelETUCT) trainAndSwap(batch []mdp.Experience) (bool, error) {
	p.learnMu.Lock()
	defer p.learnMu.Unlock()

	p.liveMu.RLock()
	cur := p.model
	p.liveMu.RUnlock()
	if cur == nil {
		return false, ErrNoModel
	}

	next := cur.Copy()
	changed, err := next.UpdateWithExperiences(batch)
	if err != nil {
		return false, fmt.Errorf("%w: %w", mdp.ErrInconsistentModel, err)
	}

	p.liveMu.Lock()
	p.model = next
	if changed {
		p.lastUpdate++
	}
	frame := p.lastUpdate
	p.liveMu.Unlock()
	modelSwapsTotal.Inc()

	if changed {
		if err := p.afterModelChange(); err != nil {
			return changed, err
		}
	}
	p.logger.Debug("model swapped", "experiences", len(batch), "changed", changed, "frame", frame)
	return changed, nil
}

// afterModelChange は全状態の訪問回数を上限まで減らし、探索で通った状態の予測を更新する。
func (p *ParallelETUCT) afterModelChange() error {
	for h, info := range p.allInfos() {
		info.infoMu.Lock()
		info.clipVisits(p.cfg.MinVisits, p.cfg.NumActions)
		dirty := info.needsUpdate
		info.needsUpdate = false
		info.infoMu.Unlock()
		if !dirty {
			continue
		}
		if err := p.refreshCache(state.Handle(h), info); err != nil {
			return err
		}
	}
	return nil
}

func (p *ParallelETUCT) refreshCache(h state.Handle, info *stateInfo) error {
	info.modelMu.Lock()
	defer info.modelMu.Unlock()
	frame := p.frame()
	for a, byHistory := range info.cache {
		for key, c := range byHistory {
			if c.sa.FrameUpdated >= frame {
				continue
			}
			fresh, err := p.queryModel(p.modelInput(h, c.hist), a)
			if err != nil {
				return err
			}
			byHistory[key] = cached{hist: c.hist, sa: fresh}
		}
	}
	return nil
}
