//go:build !race

package trust

func passwordHashCost() int {
	return 14
}
