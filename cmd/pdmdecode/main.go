/* Decode PDM bus captures */
package main

import (
	pdm "github.com/doismellburning/pdmdecode/src"
)

func main() {
	pdm.PdmDecodeMain()
}
