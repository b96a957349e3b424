//go:build !linux

package health

func residentBytes(pid int) (int64, error) { return psResident(pid) }
