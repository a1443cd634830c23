package display

import (
	"sync"

	"fyne.io/fyne/v2/test"
)

var headlessOnce sync.Once

// startHeadless installs an in-memory Fyne app. Text measuring and the
// software canvas need a current app and driver, and the appliance has no
// window system, so the test package's driver is the one used in production.
func startHeadless() {
	headlessOnce.Do(func() { test.NewApp() })
}
