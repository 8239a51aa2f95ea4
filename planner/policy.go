package planner

import (
	"fmt"
	"io"

	"github.com/sw965/texplore/policyio"
	"github.com/sw965/texplore/state"
)

// SavePolicy は全ての正準状態とその Q 値を方策ファイルの形式で書き出す。
func (p *ParallelETUCT) SavePolicy(w io.Writer) error {
	infos := p.allInfos()
	pol := policyio.Policy{NumActions: p.cfg.NumActions, Records: make([]policyio.PolicyRecord, 0, len(infos))}
	for h, info := range infos {
		vec := p.space.Vector(state.Handle(h))
		if h == 0 {
			pol.FeatureSize = len(vec)
		}
		if len(vec) != pol.FeatureSize {
			return fmt.Errorf("%w: 状態ベクトルの次元数が揃っていません", policyio.ErrSizeMismatch)
		}
		info.infoMu.Lock()
		q := append([]float64(nil), info.q...)
		info.infoMu.Unlock()
		pol.Records = append(pol.Records, policyio.PolicyRecord{State: policyio.Float32s(vec), Q: policyio.Float32s(q)})
	}
	if len(infos) == 0 {
		pol.FeatureSize = len(p.cfg.FeatMin)
	}
	return policyio.WritePolicy(w, pol)
}

// LoadPolicy は方策ファイルの Q 値で各状態の Q 値を上書きする。ファイルにない状態はそのまま。
func (p *ParallelETUCT) LoadPolicy(r io.Reader) (int, error) {
	pol, err := policyio.ReadPolicy(r)
	if err != nil {
		return 0, err
	}
	if err := pol.Validate(); err != nil {
		return 0, err
	}
	if pol.NumActions != p.cfg.NumActions {
		return 0, fmt.Errorf("%w: 行動数が一致しません file=%d planner=%d", policyio.ErrSizeMismatch, pol.NumActions, p.cfg.NumActions)
	}
	for _, rec := range pol.Records {
		info := p.info(p.canonicalize(policyio.Float64s(rec.State)))
		info.infoMu.Lock()
		for a, q := range rec.Q {
			info.q[a] = float64(q)
		}
		info.infoMu.Unlock()
	}
	p.logger.Info("policy loaded", "states", len(pol.Records))
	return len(pol.Records), nil
}
