package layout

import (
	"fmt"
	"strings"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

type typeKind int

const (
	kindElementary typeKind = iota
	kindBytes
	kindEnum
	kindStruct
	kindStaticArray
	kindDynamicArray
	kindMapping
)

// typeDiff describes how an updated type differs from the original. Safe diffs, such as
// members appended to a struct held in a mapping, keep the variable matched.
type typeDiff struct {
	detail string
	safe   bool
}

func unsafeDiff(format string, args ...any) *typeDiff {
	return &typeDiff{detail: fmt.Sprintf(format, args...)}
}

func kindOf(id string, t models.TypeItem) typeKind {
	switch t.Encoding {
	case "mapping":
		return kindMapping
	case "dynamic_array":
		return kindDynamicArray
	case "bytes":
		return kindBytes
	}
	switch {
	case strings.HasPrefix(id, "t_struct"):
		return kindStruct
	case strings.HasPrefix(id, "t_array"):
		return kindStaticArray
	case strings.HasPrefix(id, "t_enum"):
		return kindEnum
	default:
		return kindElementary
	}
}

func isAddressLike(label string) bool {
	return label == "address" || label == "address payable" || strings.HasPrefix(label, "contract ")
}

// arrayLength returns the outermost length of a static array label such as "uint256[50]"
func arrayLength(label string) string {
	open := strings.LastIndex(label, "[")
	if open < 0 || !strings.HasSuffix(label, "]") {
		return ""
	}
	return label[open+1 : len(label)-1]
}

// compareTypes compares two type ids taken from the original and the updated type tables.
// inArray is set when the type is the element of an array, where any size change moves the
// following elements.
func (c *comparator) compareTypes(origID, updID string, inArray bool) *typeDiff {
	o, okO := c.original.TypeOf(origID)
	u, okU := c.updated.TypeOf(updID)
	if !okO || !okU {
		if origID == updID {
			return nil
		}
		return unsafeDiff("Type changed from %s to %s", origID, updID)
	}

	ko, ku := kindOf(origID, o), kindOf(updID, u)
	if ko != ku {
		return unsafeDiff("Type changed from %s to %s", o.Label, u.Label)
	}

	switch ko {
	case kindMapping:
		if d := c.compareTypes(o.Key, u.Key, false); d != nil {
			return unsafeDiff("Mapping key changed from %s to %s", o.Label, u.Label)
		}
		return nested("In mapping value", c.compareTypes(o.Value, u.Value, false))
	case kindDynamicArray:
		return nested("In array element", c.compareTypes(o.Base, u.Base, true))
	case kindStaticArray:
		if lenO, lenU := arrayLength(o.Label), arrayLength(u.Label); lenO != lenU {
			return unsafeDiff("Array length changed from %s to %s", lenO, lenU)
		}
		return nested("In array element", c.compareTypes(o.Base, u.Base, true))
	case kindStruct:
		return c.compareStructs(o, u, inArray)
	case kindEnum:
		if o.Size() != u.Size() {
			return unsafeDiff("Enum size changed from %d to %d bytes (%s)", o.Size(), u.Size(), u.Label)
		}
		return nil
	case kindBytes:
		if o.Label != u.Label {
			return unsafeDiff("Type changed from %s to %s", o.Label, u.Label)
		}
		return nil
	case kindElementary:
		if o.Label == u.Label || (isAddressLike(o.Label) && isAddressLike(u.Label)) {
			if o.Size() == u.Size() {
				return nil
			}
		}
		return unsafeDiff("Type changed from %s to %s", o.Label, u.Label)
	default:
		return unsafeDiff("Type changed from %s to %s", o.Label, u.Label)
	}
}

func nested(prefix string, d *typeDiff) *typeDiff {
	if d == nil {
		return nil
	}
	return &typeDiff{detail: prefix + ": " + d.detail, safe: d.safe}
}

func (c *comparator) compatible(origID, updID string, inArray bool) bool {
	d := c.compareTypes(origID, updID, inArray)
	return d == nil || d.safe
}

// compareStructs aligns struct members. Members appended at the end are safe unless the
// struct is an array element and its size changed.
func (c *comparator) compareStructs(o, u models.TypeItem, inArray bool) *typeDiff {
	edits := align(len(o.Members), len(u.Members), func(i, j int) bool {
		return o.Members[i].Label == u.Members[j].Label &&
			c.compatible(o.Members[i].Type, u.Members[j].Type, inArray)
	})
	last := lastOriginalEdit(edits)

	var problems []string
	grew := false
	for k, e := range edits {
		switch e.kind {
		case editMatch:
			om, um := o.Members[e.orig], u.Members[e.upd]
			if om.Slot != um.Slot || om.Offset != um.Offset {
				problems = append(problems, fmt.Sprintf("Moved member `%s`", um.Label))
			}
			if d := c.compareTypes(om.Type, um.Type, inArray); d != nil {
				grew = true
			}
		case editSubstitute:
			om, um := o.Members[e.orig], u.Members[e.upd]
			switch {
			case om.Label == um.Label:
				problems = append(problems, fmt.Sprintf("Upgraded member `%s` to an incompatible type", um.Label))
			case c.compatible(om.Type, um.Type, inArray):
				problems = append(problems, fmt.Sprintf("Renamed member `%s` to `%s`", om.Label, um.Label))
			default:
				problems = append(problems, fmt.Sprintf("Replaced member `%s` with `%s`", om.Label, um.Label))
			}
		case editInsert:
			if k > last {
				grew = true
				continue
			}
			problems = append(problems, fmt.Sprintf("Inserted member `%s`", u.Members[e.upd].Label))
		case editDelete:
			problems = append(problems, fmt.Sprintf("Deleted member `%s`", o.Members[e.orig].Label))
		}
	}

	if len(problems) > 0 {
		return unsafeDiff("In %s: %s", u.Label, strings.Join(problems, "; "))
	}
	if !grew {
		return nil
	}
	if inArray && o.Size() != u.Size() {
		return unsafeDiff("Size of %s changed from %d to %d bytes inside an array", u.Label, o.Size(), u.Size())
	}
	return &typeDiff{detail: fmt.Sprintf("Added members to %s", u.Label), safe: true}
}

// lastOriginalEdit returns the index of the last edit consuming an original item, -1 if none.
// Insertions after it are appends.
func lastOriginalEdit(edits []edit) int {
	last := -1
	for k, e := range edits {
		if e.kind != editInsert {
			last = k
		}
	}
	return last
}
