package format

// Deref returns *p, or def when p is nil.
func Deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// OrDash renders an optional answer, using "-" for missing or blank values.
func OrDash(p *string) string {
	if p == nil || *p == "" {
		return "-"
	}
	return *p
}
