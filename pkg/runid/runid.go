// Package runid generates short, human-readable slugs, which the WebTransport
// test cases use as session endpoint and subprotocol names. It generalizes
// the original implementation's unique_random_slugs module into a
// self-contained Go generator backed by math/rand/v2, plus Correlation, a
// google/uuid v4 helper.
package runid

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

var adjectives = []string{
	"amber", "brisk", "coral", "dusky", "ember", "fleet", "gusty", "hazel",
	"inky", "jovial", "keen", "lucid", "misty", "nimble", "opal", "pale",
	"quiet", "rustic", "silver", "terse", "umber", "vivid", "windy", "zesty",
}

var nouns = []string{
	"falcon", "grove", "harbor", "inlet", "jasper", "kestrel", "lagoon",
	"meadow", "needle", "otter", "pebble", "quarry", "ridge", "sparrow",
	"thicket", "urchin", "valley", "willow", "xylem", "yucca", "zephyr",
}

// Slug returns a random adjective-noun pair such as "brisk-falcon". It is not
// guaranteed unique: two calls can return the same pair.
func Slug() string {
	return fmt.Sprintf("%s-%s", pick(adjectives), pick(nouns))
}

// Correlation returns a random UUIDv4 string, suitable as a per-run
// correlation id.
func Correlation() string {
	return uuid.NewString()
}

func pick(words []string) string {
	return words[rand.IntN(len(words))]
}
