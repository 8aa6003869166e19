package shared

import "fmt"

// NumberingLockKey builds the redis key that serializes document number
// generation per (document type, company code).
func NumberingLockKey(docType, companyCode string) string {
	return fmt.Sprintf("numbering:%s:%s:lock", docType, companyCode)
}
