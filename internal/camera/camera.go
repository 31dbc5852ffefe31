package camera

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/gonzalop/cityeye/internal/geo"
)

// Camera is one fixed-location sensor in the fleet. It starts in sleep
// mode and flips to active when an incident falls within reach of it, or
// of a chain of cameras leading back to one that does.
type Camera struct {
	ID        uint32
	Location  geo.Location
	SleepMode bool
	Directory string
}

func newCamera(id uint32, location geo.Location, root string) Camera {
	return Camera{
		ID:        id,
		Location:  location,
		SleepMode: true,
		Directory: filepath.Join(root, strconv.FormatUint(uint64(id), 10)),
	}
}

func createDirectory(path string) error {
	return os.MkdirAll(path, 0o755)
}

func removeDirectory(path string) error {
	return os.RemoveAll(path)
}
