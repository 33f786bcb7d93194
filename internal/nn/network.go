// Package nn implements the small fully connected Q-network used by the
// agent, on top of gonum matrices.
package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Network is a multilayer perceptron with ReLU hidden layers and a linear
// output layer. W[l] has shape (Sizes[l+1], Sizes[l]).
type Network struct {
	Sizes []int
	W     []*mat.Dense
	B     []*mat.VecDense
}

// New builds a network with He-initialized weights and zero biases.
func New(sizes []int, rng *rand.Rand) (*Network, error) {
	if len(sizes) < 2 {
		return nil, errors.New("network needs at least an input and an output layer")
	}
	for i, s := range sizes {
		if s <= 0 {
			return nil, fmt.Errorf("layer %d has non-positive size %d", i, s)
		}
	}
	n := &Network{Sizes: append([]int(nil), sizes...)}
	for l := 0; l < len(sizes)-1; l++ {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2 / float64(in))
		data := make([]float64, out*in)
		for i := range data {
			data[i] = rng.NormFloat64() * scale
		}
		n.W = append(n.W, mat.NewDense(out, in, data))
		n.B = append(n.B, mat.NewVecDense(out, nil))
	}
	return n, nil
}

// Layers returns the number of weight layers.
func (n *Network) Layers() int { return len(n.W) }

// Inputs returns the input width.
func (n *Network) Inputs() int { return n.Sizes[0] }

// Outputs returns the output width.
func (n *Network) Outputs() int { return n.Sizes[len(n.Sizes)-1] }

// Clone returns a deep copy.
func (n *Network) Clone() *Network {
	c := &Network{Sizes: append([]int(nil), n.Sizes...)}
	for l := range n.W {
		c.W = append(c.W, mat.DenseCopyOf(n.W[l]))
		c.B = append(c.B, mat.VecDenseCopyOf(n.B[l]))
	}
	return c
}

// CopyFrom overwrites n's parameters with src's. Both must share a shape.
func (n *Network) CopyFrom(src *Network) {
	for l := range n.W {
		n.W[l].Copy(src.W[l])
		n.B[l].CopyVec(src.B[l])
	}
}

// Equal reports whether both networks hold identical parameters.
func (n *Network) Equal(o *Network) bool {
	if len(n.W) != len(o.W) {
		return false
	}
	for l := range n.W {
		if !mat.Equal(n.W[l], o.W[l]) || !mat.Equal(n.B[l], o.B[l]) {
			return false
		}
	}
	return true
}

// Forward evaluates the network on a single input vector.
func (n *Network) Forward(x []float64) []float64 {
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for l := range n.W {
		z := mat.NewVecDense(n.Sizes[l+1], nil)
		z.MulVec(n.W[l], a)
		z.AddVec(z, n.B[l])
		if l < len(n.W)-1 {
			relu(z)
		}
		a = z
	}
	return a.RawVector().Data
}

// pass is one forward evaluation with intermediate values kept for
// backpropagation. acts[0] is the input; pre[l] is layer l before ReLU.
type pass struct {
	acts []*mat.VecDense
	pre  []*mat.VecDense
}

func (n *Network) forwardKeep(x []float64) pass {
	p := pass{acts: []*mat.VecDense{mat.NewVecDense(len(x), append([]float64(nil), x...))}}
	for l := range n.W {
		z := mat.NewVecDense(n.Sizes[l+1], nil)
		z.MulVec(n.W[l], p.acts[l])
		z.AddVec(z, n.B[l])
		p.pre = append(p.pre, z)
		a := mat.VecDenseCopyOf(z)
		if l < len(n.W)-1 {
			relu(a)
		}
		p.acts = append(p.acts, a)
	}
	return p
}

func (p pass) output() []float64 {
	return p.acts[len(p.acts)-1].RawVector().Data
}

func relu(v *mat.VecDense) {
	raw := v.RawVector()
	for i := 0; i < v.Len(); i++ {
		if raw.Data[i*raw.Inc] < 0 {
			raw.Data[i*raw.Inc] = 0
		}
	}
}

// Gradients mirrors a network's parameter shapes.
type Gradients struct {
	W []*mat.Dense
	B []*mat.VecDense
}

func (n *Network) zeroGradients() *Gradients {
	g := &Gradients{}
	for l := range n.W {
		r, c := n.W[l].Dims()
		g.W = append(g.W, mat.NewDense(r, c, nil))
		g.B = append(g.B, mat.NewVecDense(r, nil))
	}
	return g
}

// backward accumulates into g the gradient of a loss whose derivative with
// respect to the network output is dOut.
func (n *Network) backward(p pass, dOut *mat.VecDense, g *Gradients) {
	delta := dOut
	for l := len(n.W) - 1; l >= 0; l-- {
		g.W[l].RankOne(g.W[l], 1, delta, p.acts[l])
		g.B[l].AddVec(g.B[l], delta)
		if l == 0 {
			break
		}
		prev := mat.NewVecDense(n.Sizes[l], nil)
		prev.MulVec(n.W[l].T(), delta)
		for i := 0; i < prev.Len(); i++ {
			if p.pre[l-1].AtVec(i) <= 0 {
				prev.SetVec(i, 0)
			}
		}
		delta = prev
	}
}
