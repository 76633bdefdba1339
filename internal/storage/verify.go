package storage

// Verify walks every page reachable from the tree's root and checks
// the structural invariants spec.md §3.6 lists: ascending rowids
// within each leaf, every interior separator key bounding its left
// subtree, and the linked-leaf chain visiting leaves in the same
// ascending order a root-to-leaf descent would. It is meant for tests
// and debugging, not the hot insert/delete path.
func Verify(t *Tree) error {
	lastLeafRowid := (*int64)(nil)
	var leaves, nextLeaves []uint32
	var walk func(pageNum uint32, lowExclusive, highInclusive *int64) error

	walk = func(pageNum uint32, lowExclusive, highInclusive *int64) error {
		pg, err := t.pager.GetPage(pageNum)
		if err != nil {
			return err
		}
		defer t.pager.UnpinPage(pg.Num)

		if pg.Type() == PageTypeLeaf {
			leaves, nextLeaves = append(leaves, pg.Num), append(nextLeaves, pg.NextLeaf())
			var prev *int64
			for i := 0; i < pg.CellCount(); i++ {
				rid, err := peekRowid(pg.Data[pg.CellPointer(i):])
				if err != nil {
					return err
				}
				if prev != nil && rid <= *prev {
					return newErr("verify", KindInvalidBounds, int(pg.Num), nil)
				}
				if lowExclusive != nil && rid <= *lowExclusive {
					return newErr("verify", KindInvalidBounds, int(pg.Num), nil)
				}
				if highInclusive != nil && rid > *highInclusive {
					return newErr("verify", KindInvalidBounds, int(pg.Num), nil)
				}
				prev = &rid
			}
			if prev != nil {
				if lastLeafRowid != nil && *prev <= *lastLeafRowid {
					return newErr("verify", KindInvalidBounds, int(pg.Num), nil)
				}
				lastLeafRowid = prev
			}
			return nil
		}

		n := pg.CellCount()
		prevKey := lowExclusive
		for i := 0; i < n; i++ {
			child, key, err := readInteriorCell(pg, i)
			if err != nil {
				return err
			}
			if highInclusive != nil && key > *highInclusive {
				return newErr("verify", KindInvalidBounds, int(pg.Num), nil)
			}
			k := key
			if err := walk(child, prevKey, &k); err != nil {
				return err
			}
			prevKey = &k
		}
		return walk(pg.RightmostChild(), prevKey, highInclusive)
	}

	if err := walk(t.root, nil, nil); err != nil {
		return err
	}
	for i, next := range nextLeaves {
		want := uint32(0)
		if i+1 < len(leaves) {
			want = leaves[i+1]
		}
		if next != want {
			return newErr("verify", KindInvalidBounds, int(leaves[i]), nil)
		}
	}
	return nil
}
