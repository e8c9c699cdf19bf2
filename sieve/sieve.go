// Package sieve generates prime tables with the Sieve of Eratosthenes.
package sieve

// Eratosthenes returns every prime in [2, n] in increasing order.
// Bounds below 2 yield an empty table.
func Eratosthenes(n int) []int {
	if n < 2 {
		return []int{}
	}

	composite := make([]bool, n+1)
	nonprimes := 1 // 1 is not a prime

	for i := 2; i <= n; i++ {
		if composite[i] {
			continue
		}
		for j := 2 * i; j <= n; j += i {
			if !composite[j] {
				composite[j] = true
				nonprimes++
			}
		}
	}

	primes := make([]int, 0, n-nonprimes)
	for i := 2; i <= n; i++ {
		if !composite[i] {
			primes = append(primes, i)
		}
	}
	return primes
}
