package nn

import (
	"math"

	"github.com/racedqn/autopilot/internal/replay"
	"gonum.org/v1/gonum/mat"
)

// HuberDelta is the transition point between the quadratic and linear
// regions of the loss.
const HuberDelta = 1.0

// Huber returns the Huber loss of a residual and its derivative.
func Huber(diff float64) (loss, grad float64) {
	if math.Abs(diff) <= HuberDelta {
		return 0.5 * diff * diff, diff
	}
	return HuberDelta * (math.Abs(diff) - 0.5*HuberDelta), math.Copysign(HuberDelta, diff)
}

// Targets computes reward + gamma * (1-done) * max_a' Q_target(next, a')
// for every row of the batch.
func Targets(target *Network, b *replay.Batch, gamma float64) []float64 {
	y := make([]float64, b.Size)
	for i := range y {
		q := target.Forward(replay.Row(b.NextStates, i))
		best := math.Inf(-1)
		for _, v := range q {
			if v > best {
				best = v
			}
		}
		y[i] = b.Rewards[i] + gamma*(1-b.Dones[i])*best
	}
	return y
}

// TrainStep runs one gradient step of online towards the bootstrapped
// targets and returns the mean Huber loss before the update.
func TrainStep(online, target *Network, opt *Adam, b *replay.Batch, gamma float64) float64 {
	if b.Size == 0 {
		return 0
	}
	y := Targets(target, b, gamma)
	g := online.zeroGradients()
	scale := 1 / float64(b.Size)
	var total float64
	for i := 0; i < b.Size; i++ {
		p := online.forwardKeep(replay.Row(b.States, i))
		loss, grad := Huber(p.output()[b.Actions[i]] - y[i])
		total += loss
		dOut := mat.NewVecDense(online.Outputs(), nil)
		dOut.SetVec(b.Actions[i], grad*scale)
		online.backward(p, dOut, g)
	}
	opt.Step(online, g)
	return total * scale
}

// Train runs epochs gradient steps on the same batch and returns the loss
// observed at each.
func Train(online, target *Network, opt *Adam, b *replay.Batch, gamma float64, epochs int) []float64 {
	losses := make([]float64, 0, epochs)
	for e := 0; e < epochs; e++ {
		losses = append(losses, TrainStep(online, target, opt, b, gamma))
	}
	return losses
}
