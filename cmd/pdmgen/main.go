/* Generate PDM bus captures for testing */
package main

import (
	pdm "github.com/doismellburning/pdmdecode/src"
)

func main() {
	pdm.PdmGenMain()
}
