package record

// Record is one backend document: fieldname -> value.
type Record map[string]any

// IdentityField is the backend's unique key of every document.
const IdentityField = "name"

// IDField is the identity key the automation host requires on every object.
const IDField = "id"

// Name returns the document's identity value as a string, or "".
func (r Record) Name() string {
	s, _ := r[IdentityField].(string)
	return s
}

// AddID copies the identity field to "id". Both keys are kept.
// Records without a "name" are returned unchanged.
func AddID(r Record) Record {
	if r == nil {
		return r
	}
	if v, ok := r[IdentityField]; ok {
		r[IDField] = v
	}
	return r
}

// AddIDs applies AddID to every record, returning a non-nil slice.
func AddIDs(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		out = append(out, AddID(r))
	}
	return out
}

// UniqueItems removes duplicates keeping the first occurrence of each item.
func UniqueItems(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, dup := seen[it]; dup {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// RemoveItem returns a copy of items without any occurrence of item.
func RemoveItem(items []string, item string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it != item {
			out = append(out, it)
		}
	}
	return out
}

// KeyLabel is one entry of a choice list before folding.
type KeyLabel struct {
	Key   string
	Label string
}

// ListToObject folds [{x, y}, {a, b}] into {x: y, a: b}.
// Later duplicate keys overwrite earlier ones.
func ListToObject(list []KeyLabel) map[string]string {
	out := make(map[string]string, len(list))
	for _, kl := range list {
		out[kl.Key] = kl.Label
	}
	return out
}
