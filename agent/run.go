package agent

import (
	"context"
	"time"

	"github.com/sw965/texplore/mdp"
)

// Run は episodes 回のエピソードを実行し、各エピソードの報酬の合計を返す。
// 1エピソードは終端に達するか steps 回の行動で打ち切る。
func Run(ctx context.Context, e mdp.Environment, ag *ModelBased, episodes, steps int) ([]float64, error) {
	sums := make([]float64, 0, episodes)
	for ep := 0; ep < episodes; ep++ {
		if err := ctx.Err(); err != nil {
			return sums, err
		}
		start := time.Now()
		e.Reset()
		a, err := ag.FirstAction(ctx, e.Sensation())
		if err != nil {
			return sums, err
		}

		sum := 0.0
		n := 0
		for n < steps {
			n++
			r := e.Apply(a)
			sum += r
			if e.Terminal() {
				if err := ag.LastAction(r); err != nil {
					return sums, err
				}
				break
			}
			if n == steps {
				break
			}
			if a, err = ag.NextAction(ctx, r, e.Sensation()); err != nil {
				return sums, err
			}
		}
		sums = append(sums, sum)
		ag.logger.Info("episode finished",
			"episode", ep,
			"reward", sum,
			"steps", n,
			"terminal", e.Terminal(),
			"states", ag.planner.NumStates(),
			"elapsed", time.Since(start),
		)
	}
	return sums, nil
}
