package domain

// Registry 按角色的约束表，构造完成后只读
type Registry struct {
	rules map[string][]Constraint
}

// NewRegistry 创建空约束表
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string][]Constraint)}
}

// SetRole 设置角色的约束列表，保持配置顺序
func (r *Registry) SetRole(role string, constraints []Constraint) {
	r.rules[role] = constraints
}

// ForRole 返回角色的约束列表，未配置的角色无约束
func (r *Registry) ForRole(role string) []Constraint {
	return r.rules[role]
}

// Validate 依配置顺序评估约束，首个违例短路返回，nil 表示通过
func (r *Registry) Validate(ctx *ValidationContext) *Violation {
	for _, c := range r.rules[ctx.Role] {
		if v := c.Check(ctx); v != nil {
			return v
		}
	}
	return nil
}
