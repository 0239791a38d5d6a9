package tunnel

// withStartFunc replaces the in-process engine so controller tests run
// without xray-core listening on a real port.
func (c *LocalController) withStartFunc(start startFunc) *LocalController {
	c.start = start
	return c
}
