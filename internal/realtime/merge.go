package realtime

import "github.com/aristath/agrimarket/internal/domain"

// merge applies change notifications to rows. It returns ok=false when a
// notification carries no row to apply, in which case the caller reloads.
func merge(rows []domain.Row, batch []domain.ChangeEvent, filter domain.Filter, key string) ([]domain.Row, bool) {
	out := make([]domain.Row, 0, len(rows)+len(batch))
	for _, r := range rows {
		out = append(out, r.Clone())
	}

	indexOf := func(k string) int {
		for i, r := range out {
			if r.String(key) == k {
				return i
			}
		}
		return -1
	}

	for _, ev := range batch {
		switch ev.Kind {
		case domain.ChangeInsert, domain.ChangeUpdate:
			if ev.Row == nil {
				return nil, false
			}
			i := indexOf(ev.Row.String(key))
			switch {
			case !filter.Matches(ev.Row):
				if i >= 0 {
					out = append(out[:i], out[i+1:]...)
				}
			case i >= 0:
				out[i] = ev.Row.Clone()
			default:
				out = append(out, ev.Row.Clone())
			}
		case domain.ChangeDelete:
			old := ev.OldRow
			if old == nil {
				old = ev.Row
			}
			if old == nil {
				return nil, false
			}
			if i := indexOf(old.String(key)); i >= 0 {
				out = append(out[:i], out[i+1:]...)
			}
		default:
			return nil, false
		}
	}
	return out, true
}
