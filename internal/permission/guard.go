package permission

// Guard returns child() when r allows code and fallback() otherwise. A nil fallback
// yields the zero value. Neither function runs unless selected, and no check runs
// while r is loading.
func Guard[T any](r *Resolver, code string, child, fallback func() T) T {
	if r != nil && !r.Loading() && r.CheckPermission(code) {
		if child == nil {
			var zero T
			return zero
		}
		return child()
	}
	if fallback == nil {
		var zero T
		return zero
	}
	return fallback()
}

// GuardAny is Guard for "any of codes".
func GuardAny[T any](r *Resolver, codes []string, child, fallback func() T) T {
	if r != nil && !r.Loading() && r.CheckAny(codes...) {
		if child != nil {
			return child()
		}
		var zero T
		return zero
	}
	if fallback == nil {
		var zero T
		return zero
	}
	return fallback()
}
