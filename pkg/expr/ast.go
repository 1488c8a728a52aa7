package expr

type node interface{ node() }

type (
	literal struct{ value any } // float64, string, bool or nil
	ident   struct{ name string }
	member  struct {
		object node
		name   string
	}
	index struct {
		object node
		key    node
	}
	unary struct {
		op      string
		operand node
	}
	binary struct {
		op          string
		left, right node
	}
)

func (literal) node() {}
func (ident) node()   {}
func (member) node()  {}
func (index) node()   {}
func (unary) node()   {}
func (binary) node()  {}
