package health

import (
	"github.com/prometheus/procfs"
)

// residentBytes reads /proc/<pid>/stat; zombies count as not running.
func residentBytes(pid int) (int64, error) {
	p, err := procfs.NewProc(pid)
	if err != nil {
		return psResident(pid)
	}
	st, err := p.Stat()
	if err != nil {
		return psResident(pid)
	}
	if st.State == "Z" || st.State == "X" {
		return 0, errNotRunning
	}
	return int64(st.ResidentMemory()), nil
}
