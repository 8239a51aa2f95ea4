package ql

func UpdateQ(q, target, lr float64) float64 {
	return q + lr*(target-q)
}

// LearnRate は訪問回数とともに減衰する学習率。
func LearnRate(visits int) float64 {
	return 10.0 / (float64(visits) + 10.0)
}

// BlendTrace は標本収益と現在の最良推定値を lambda で補間する。
// lambda=1 なら標本収益そのもの、lambda=0 なら maxQ となる。
func BlendTrace(lambda, sampled, maxQ float64) float64 {
	if lambda >= 1.0 {
		return sampled
	}
	return lambda*sampled + (1.0-lambda)*maxQ
}
