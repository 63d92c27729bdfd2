package logical

import (
	"fmt"
	"strings"
)

// Format renders the plan in SSA-like text form. Each node is printed once
// in dependency order and referenced by its %N value thereafter, which makes
// shared subplans visible in the output.
func Format(p Plan) string {
	f := &ssaFormatter{ids: make(map[Plan]int)}
	root := f.visit(p)
	f.sb.WriteString(fmt.Sprintf("RETURN %%%d\n", root))
	return f.sb.String()
}

type ssaFormatter struct {
	sb   strings.Builder
	ids  map[Plan]int
	next int
}

func (f *ssaFormatter) visit(p Plan) int {
	if id, ok := f.ids[p]; ok {
		return id
	}

	inputs := make([]int, 0, len(p.Inputs()))
	for _, in := range p.Inputs() {
		inputs = append(inputs, f.visit(in))
	}

	f.next++
	id := f.next
	f.ids[p] = id

	line := p.String()
	if len(inputs) > 0 {
		refs := make([]string, len(inputs))
		for i, in := range inputs {
			refs[i] = fmt.Sprintf("%%%d", in)
		}
		// Append the input references to the node's own property list.
		if strings.HasSuffix(line, "]") {
			line = fmt.Sprintf("%s, plan=(%s)]", strings.TrimSuffix(line, "]"), strings.Join(refs, ", "))
		} else {
			line = fmt.Sprintf("%s [plan=(%s)]", line, strings.Join(refs, ", "))
		}
	}
	f.sb.WriteString(fmt.Sprintf("%%%d = %s\n", id, line))
	return id
}
