package rodhost

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// OpenPage creates a blank page on b. With hide set the page is created
// with the stealth evasions applied, so sites that gate on headless
// detection serve the same markup they serve a desktop browser.
func OpenPage(b *rod.Browser, hide bool) (*rod.Page, error) {
	var page *rod.Page
	var err error
	if hide {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("rodhost: create page: %w", err)
	}
	return page, nil
}
