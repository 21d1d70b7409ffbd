// Command rfm segments store customers by recency, frequency and monetary value.
package main

func main() {
	Execute()
}
