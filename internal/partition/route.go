package partition

import (
	"fmt"
	"regexp"
	"strconv"
)

var multipartRoutePattern = regexp.MustCompile(`^(.+)_part(\d+)$`)

// splitMultipartRoute decodes a route id produced by the partitioner's
// route-splitting pass: "<base>_part<k>" with zero-padded or bare k. ok
// is false for an ordinary, unsplit route id.
func splitMultipartRoute(routeID string) (base string, part int, ok bool) {
	m := multipartRoutePattern.FindStringSubmatch(routeID)
	if m == nil {
		return "", 0, false
	}
	k, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], k, true
}

// nextPartRouteID names the route segment a vehicle enters next when it
// crosses into the neighbor partition handling part k+1 of base.
func nextPartRouteID(base string, part int) string {
	return fmt.Sprintf("%s_part%d", base, part+1)
}
