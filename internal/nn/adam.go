package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Adam is the Adam optimizer with per-parameter moment estimates.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t  int
	mW []*mat.Dense
	vW []*mat.Dense
	mB []*mat.VecDense
	vB []*mat.VecDense
}

// NewAdam returns an optimizer with the usual moment decay rates.
func NewAdam(lr float64) *Adam {
	return &Adam{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int { return a.t }

// Clone returns a deep copy including moment state.
func (a *Adam) Clone() *Adam {
	c := *a
	c.mW, c.vW = cloneDense(a.mW), cloneDense(a.vW)
	c.mB, c.vB = cloneVec(a.mB), cloneVec(a.vB)
	return &c
}

func cloneDense(in []*mat.Dense) []*mat.Dense {
	if in == nil {
		return nil
	}
	out := make([]*mat.Dense, len(in))
	for i, m := range in {
		out[i] = mat.DenseCopyOf(m)
	}
	return out
}

func cloneVec(in []*mat.VecDense) []*mat.VecDense {
	if in == nil {
		return nil
	}
	out := make([]*mat.VecDense, len(in))
	for i, v := range in {
		out[i] = mat.VecDenseCopyOf(v)
	}
	return out
}

func (a *Adam) init(n *Network) {
	if a.mW != nil {
		return
	}
	for l := range n.W {
		r, c := n.W[l].Dims()
		a.mW = append(a.mW, mat.NewDense(r, c, nil))
		a.vW = append(a.vW, mat.NewDense(r, c, nil))
		a.mB = append(a.mB, mat.NewVecDense(r, nil))
		a.vB = append(a.vB, mat.NewVecDense(r, nil))
	}
}

// Step applies one update of g to n.
func (a *Adam) Step(n *Network, g *Gradients) {
	a.init(n)
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for l := range n.W {
		a.update(n.W[l].RawMatrix().Data, g.W[l].RawMatrix().Data,
			a.mW[l].RawMatrix().Data, a.vW[l].RawMatrix().Data, c1, c2)
		a.update(n.B[l].RawVector().Data, g.B[l].RawVector().Data,
			a.mB[l].RawVector().Data, a.vB[l].RawVector().Data, c1, c2)
	}
}

func (a *Adam) update(p, g, m, v []float64, c1, c2 float64) {
	for i := range p {
		m[i] = a.Beta1*m[i] + (1-a.Beta1)*g[i]
		v[i] = a.Beta2*v[i] + (1-a.Beta2)*g[i]*g[i]
		p[i] -= a.LR * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.Eps)
	}
}
