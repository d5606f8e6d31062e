package compositor

// Node is one container in a sway GET_TREE reply.
type Node struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	AppID         string `json:"app_id"`
	Focused       bool   `json:"focused"`
	Rect          Rect   `json:"rect"`
	Nodes         []Node `json:"nodes"`
	FloatingNodes []Node `json:"floating_nodes"`
}

// FindFocused returns the first focused node in a depth-first walk of root.
//
// The walk uses an explicit stack since tree depth is user controlled.
// Tiled children are pushed before floating children, so floating children
// are visited first and, within each list, later entries before earlier ones.
func FindFocused(root *Node) (*Node, bool) {
	if root == nil {
		return nil, false
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.Focused {
			return top, true
		}
		for i := range top.Nodes {
			stack = append(stack, &top.Nodes[i])
		}
		for i := range top.FloatingNodes {
			stack = append(stack, &top.FloatingNodes[i])
		}
	}
	return nil, false
}
