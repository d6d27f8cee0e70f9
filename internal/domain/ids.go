package domain

import "strconv"

// PersonID is the storage-assigned identifier of a member record.
// It is immutable once the record has been created.
type PersonID int64

func (id PersonID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParsePersonID parses a decimal person id as found in a request path.
func ParsePersonID(s string) (PersonID, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return PersonID(n), true
}
