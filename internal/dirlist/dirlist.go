// Package dirlist maintains the ordered, client-visible directory listing
// and the cursor used by the get-next / get-previous directory requests.
//
// The list is rebuilt from the live host directory before every set-name
// and get-first, so entries are plain values; a pointer handed out by Find
// or First stays valid after the list is cleared and rebuilt.
package dirlist

// Entry is one directory entry exposed to the client.
type Entry struct {
	LocalName  string // host filename (or path, for magic files)
	ClientName string // fixed-width translated name
	Attr       byte
	Size       uint16 // 0 for directories and oversize files
	Dir        bool
}

// List is an ordered entry collection with a bidirectional cursor.
type List struct {
	entries []*Entry
	cur     int
}

func New() *List {
	return &List{cur: -1}
}

// Clear drops all entries and resets the cursor.
func (l *List) Clear() {
	l.entries = l.entries[:0]
	l.cur = -1
}

// Add appends an entry at the end of the listing.
func (l *List) Add(e Entry) *Entry {
	p := &e
	l.entries = append(l.entries, p)
	return p
}

func (l *List) Len() int { return len(l.entries) }

// First resets the cursor and returns the first entry, or nil when the
// listing is empty.
func (l *List) First() *Entry {
	if len(l.entries) == 0 {
		l.cur = -1
		return nil
	}
	l.cur = 0
	return l.entries[0]
}

// Next advances the cursor. Past the last entry it returns nil and stays
// pinned at the end, so repeated calls keep signalling end-of-listing.
func (l *List) Next() *Entry {
	if l.cur+1 >= len(l.entries) {
		l.cur = len(l.entries)
		return nil
	}
	l.cur++
	return l.entries[l.cur]
}

// Prev retreats the cursor; before the first entry it returns nil.
func (l *List) Prev() *Entry {
	if l.cur <= 0 {
		l.cur = -1
		return nil
	}
	l.cur--
	return l.entries[l.cur]
}

// Find returns the entry whose client name matches exactly, or nil.
func (l *List) Find(clientName string) *Entry {
	for _, e := range l.entries {
		if e.ClientName == clientName {
			return e
		}
	}
	return nil
}
