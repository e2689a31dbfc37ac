// Package layout compares the storage layouts of two implementations of the same proxy.
package layout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/holiman/uint256"
	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

type comparator struct {
	original *models.StorageLayout
	updated  *models.StorageLayout
}

// byteRange is a [start, end) range of absolute storage bytes
type byteRange struct {
	start *uint256.Int
	end   *uint256.Int
}

// Compare aligns the updated layout against the original one and reports every change.
// The main storage and every namespace are compared independently.
func Compare(original, updated *models.StorageLayout) (*Report, error) {
	if original == nil {
		original = &models.StorageLayout{}
	}
	if updated == nil {
		updated = &models.StorageLayout{}
	}
	c := &comparator{original: original, updated: updated}

	var result *multierror.Error
	report := &Report{}

	changes, err := c.compareItems("", original.Storage, updated.Storage)
	if err != nil {
		result = multierror.Append(result, err)
	}
	report.Changes = append(report.Changes, changes...)

	namespaces := lo.Keys(original.Namespaces)
	sort.Strings(namespaces)
	for _, ns := range namespaces {
		items := original.Namespaces[ns]
		updatedItems, ok := updated.Namespaces[ns]
		if !ok {
			for i := range items {
				report.Changes = append(report.Changes, models.LayoutChange{
					Op:        models.LayoutOpDelete,
					Namespace: ns,
					Original:  &items[i],
					Detail:    "namespace removed",
				})
			}
			continue
		}
		changes, err := c.compareItems(ns, items, updatedItems)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("namespace %s: %w", ns, err))
		}
		report.Changes = append(report.Changes, changes...)
	}

	return report, result.ErrorOrNil()
}

func (c *comparator) compareItems(ns string, orig, upd []models.StorageItem) ([]models.LayoutChange, error) {
	edits := align(len(orig), len(upd), func(i, j int) bool {
		return c.itemsMatch(&orig[i], &upd[j])
	})
	last := lastOriginalEdit(edits)
	byOrig, byUpd := pairMoves(edits, orig, upd)

	var result *multierror.Error
	gaps, err := c.gapRanges(orig)
	if err != nil {
		result = multierror.Append(result, err)
	}

	inserted := func(u *models.StorageItem) models.LayoutChange {
		change := models.LayoutChange{Op: models.LayoutOpInsert, Namespace: ns, Updated: u}
		inGap, err := c.withinGap(u, gaps)
		if err != nil {
			result = multierror.Append(result, err)
		}
		if inGap {
			change.Safe = true
			change.Detail = "uses space from a storage gap"
		}
		return change
	}

	var changes []models.LayoutChange
	for k, e := range edits {
		switch e.kind {
		case editMatch:
			change, err := c.checkMatched(&orig[e.orig], &upd[e.upd])
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if change != nil {
				change.Namespace = ns
				changes = append(changes, *change)
			}

		case editSubstitute:
			o, u := &orig[e.orig], &upd[e.upd]
			to, origMoved := byOrig[k]
			_, updMoved := byUpd[k]
			if !origMoved && !updMoved {
				change := c.substitution(o, u)
				change.Namespace = ns
				changes = append(changes, change)
				continue
			}
			if origMoved {
				changes = append(changes, c.moved(ns, o, &upd[edits[to].upd]))
			} else {
				changes = append(changes, models.LayoutChange{Op: models.LayoutOpDelete, Namespace: ns, Original: o})
			}
			if !updMoved {
				changes = append(changes, inserted(u))
			}

		case editDelete:
			o := &orig[e.orig]
			if to, ok := byOrig[k]; ok {
				changes = append(changes, c.moved(ns, o, &upd[edits[to].upd]))
				continue
			}
			changes = append(changes, models.LayoutChange{Op: models.LayoutOpDelete, Namespace: ns, Original: o})

		case editInsert:
			u := &upd[e.upd]
			if _, ok := byUpd[k]; ok {
				// reported with the original side of the move
				continue
			}
			if k > last {
				changes = append(changes, models.LayoutChange{Op: models.LayoutOpAppend, Namespace: ns, Updated: u})
				continue
			}
			changes = append(changes, inserted(u))
		}
	}

	return changes, result.ErrorOrNil()
}

// pairMoves links the original side of a deletion or substitution to the updated side of
// an insertion or substitution carrying the same label elsewhere, so a variable moved to
// another position is reported once as a layout change rather than as renames. byOrig maps
// the edit holding the original item to the edit holding the updated one; byUpd is the
// reverse.
func pairMoves(edits []edit, orig, upd []models.StorageItem) (byOrig, byUpd map[int]int) {
	byOrig = make(map[int]int)
	byUpd = make(map[int]int)
	inPlace := func(e edit) bool {
		return e.kind == editSubstitute && orig[e.orig].Label == upd[e.upd].Label
	}
	for k, e := range edits {
		if (e.kind != editDelete && e.kind != editSubstitute) || inPlace(e) {
			continue
		}
		for l, f := range edits {
			if l == k || (f.kind != editInsert && f.kind != editSubstitute) || inPlace(f) {
				continue
			}
			if _, taken := byUpd[l]; taken {
				continue
			}
			if upd[f.upd].Label == orig[e.orig].Label {
				byOrig[k] = l
				byUpd[l] = k
				break
			}
		}
	}
	return byOrig, byUpd
}

func (c *comparator) itemsMatch(o, u *models.StorageItem) bool {
	if c.isGap(c.original, o) && c.isGap(c.updated, u) {
		ot, _ := c.original.TypeOf(o.Type)
		ut, _ := c.updated.TypeOf(u.Type)
		return o.Label == u.Label && c.compatible(ot.Base, ut.Base, true)
	}
	return o.Label == u.Label && c.compatible(o.Type, u.Type, false)
}

func (c *comparator) isGap(l *models.StorageLayout, item *models.StorageItem) bool {
	if !strings.HasPrefix(item.Label, "__gap") {
		return false
	}
	t, ok := l.TypeOf(item.Type)
	return ok && kindOf(item.Type, t) == kindStaticArray
}

func itemRange(l *models.StorageLayout, item *models.StorageItem) (byteRange, error) {
	start, err := item.Position()
	if err != nil {
		return byteRange{}, err
	}
	t, _ := l.TypeOf(item.Type)
	end := new(uint256.Int).Add(start, uint256.NewInt(t.Size()))
	return byteRange{start: start, end: end}, nil
}

func (c *comparator) gapRanges(items []models.StorageItem) ([]byteRange, error) {
	var out []byteRange
	for i := range items {
		if !c.isGap(c.original, &items[i]) {
			continue
		}
		r, err := itemRange(c.original, &items[i])
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *comparator) withinGap(item *models.StorageItem, gaps []byteRange) (bool, error) {
	if len(gaps) == 0 {
		return false, nil
	}
	r, err := itemRange(c.updated, item)
	if err != nil {
		return false, err
	}
	for _, g := range gaps {
		if !r.start.Lt(g.start) && !r.end.Gt(g.end) {
			return true, nil
		}
	}
	return false, nil
}

// checkMatched verifies that a variable present in both layouts kept its position. Storage
// gaps may shrink as long as their end stays in place.
func (c *comparator) checkMatched(o, u *models.StorageItem) (*models.LayoutChange, error) {
	or, err := itemRange(c.original, o)
	if err != nil {
		return nil, err
	}
	ur, err := itemRange(c.updated, u)
	if err != nil {
		return nil, err
	}

	if c.isGap(c.original, o) && c.isGap(c.updated, u) {
		if or.end.Eq(ur.end) {
			return nil, nil
		}
		return &models.LayoutChange{
			Op:       models.LayoutOpLayoutChange,
			Original: o,
			Updated:  u,
			Detail:   fmt.Sprintf("Storage gap end moved from byte %s to %s", or.end.Dec(), ur.end.Dec()),
		}, nil
	}

	if or.start.Eq(ur.start) {
		return nil, nil
	}
	return &models.LayoutChange{
		Op:       models.LayoutOpLayoutChange,
		Original: o,
		Updated:  u,
		Detail:   positionDetail(o, u),
	}, nil
}

func (c *comparator) substitution(o, u *models.StorageItem) models.LayoutChange {
	change := models.LayoutChange{Original: o, Updated: u}
	switch {
	case o.Label == u.Label:
		change.Op = models.LayoutOpTypeChange
		if d := c.compareTypes(o.Type, u.Type, false); d != nil {
			change.Detail = d.detail
		}
	case c.compatible(o.Type, u.Type, false):
		change.Op = models.LayoutOpRename
	default:
		change.Op = models.LayoutOpReplace
	}
	return change
}

// moved reports a variable deleted at one position and inserted at another
func (c *comparator) moved(ns string, o, u *models.StorageItem) models.LayoutChange {
	change := models.LayoutChange{
		Op:        models.LayoutOpLayoutChange,
		Namespace: ns,
		Original:  o,
		Updated:   u,
		Detail:    positionDetail(o, u),
	}
	if d := c.compareTypes(o.Type, u.Type, false); d != nil && !d.safe {
		change.Op = models.LayoutOpTypeChange
		change.Detail = d.detail + "; " + change.Detail
	}
	return change
}

func positionDetail(o, u *models.StorageItem) string {
	os, oerr := o.SlotNumber()
	us, uerr := u.SlotNumber()
	if oerr == nil && uerr == nil && !os.Eq(us) {
		return fmt.Sprintf("Slot changed from %s to %s", os.Dec(), us.Dec())
	}
	return fmt.Sprintf("Offset changed from %d to %d", o.Offset, u.Offset)
}
