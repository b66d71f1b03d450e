package capsnet

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"

	"github.com/awalterschulze/gographviz"
	"github.com/pkg/errors"
)

type classNode struct {
	Class    int
	Top      int
	MaxLogit float32
}

// RoutingDot renders the k strongest learned couplings into each class
// capsule as a graphviz digraph. Useful for eyeballing which primary capsules
// a class listens to after training.
func (c *CapsNet) RoutingDot(k int) (string, error) {
	if c.b == nil || c.b.Value() == nil {
		return "", errors.New("routing logits have no value; network not initialized")
	}
	g := gographviz.NewGraph()
	if err := g.SetName("Routing"); err != nil {
		return "", err
	}
	g.SetDir(true)

	data := c.b.Value().Data().([]float32)
	inCaps := c.b.Shape()[0]
	nClasses := c.b.Shape()[1]
	if k < 1 || k > inCaps {
		k = inCaps
	}

	type coupling struct {
		in    int
		logit float32
	}

	var buf bytes.Buffer
	couplings := make([]coupling, inCaps)
	for j := 0; j < nClasses; j++ {
		for i := 0; i < inCaps; i++ {
			couplings[i] = coupling{in: i, logit: data[i*nClasses+j]}
		}
		sort.Slice(couplings, func(a, b int) bool { return couplings[a].logit > couplings[b].logit })

		buf.Reset()
		tmpl.Execute(&buf, classNode{Class: j, Top: k, MaxLogit: couplings[0].logit})
		class := fmt.Sprintf("class%d", j)
		g.AddNode("Routing", class, map[string]string{
			"fontname": "Monaco",
			"shape":    "none",
			"label":    buf.String(),
		})

		for _, cp := range couplings[:k] {
			prim := fmt.Sprintf("caps%d", cp.in)
			g.AddNode("Routing", prim, map[string]string{"shape": "point"})
			g.AddEdge(prim, class, true, map[string]string{
				"label": fmt.Sprintf(`"%.3f"`, cp.logit),
			})
		}
	}
	return g.String(), nil
}

const tmplRaw = `<
<TABLE BORDER="0" CELLBORDER="1" CELLSPACING="0">
<TR><TD>Class</TD><TD>{{.Class}}</TD></TR>
<TR><TD>Couplings shown</TD><TD>{{.Top}}</TD></TR>
<TR><TD>Max logit</TD><TD>{{.MaxLogit}}</TD></TR>
</TABLE>
>
`

var tmpl *template.Template

func init() {
	tmpl = template.Must(template.New("routing").Parse(tmplRaw))
}
