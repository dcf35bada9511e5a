package softphone

import "time"

// startTimer begins the one-second duration tick. Each timer carries a generation so a
// tick already in flight from a stopped timer is dropped by the loop.
func (s *Session) startTimer() {
	s.stopTimer()
	s.timerGen++
	s.timerOn = true
	gen := s.timerGen
	stop := make(chan struct{})
	s.stopTick = stop

	go func() {
		t := time.NewTicker(s.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				select {
				case s.ticks <- tick{gen: gen}:
				case <-stop:
					return
				case <-s.done:
					return
				}
			case <-stop:
				return
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Session) stopTimer() {
	if s.stopTick != nil {
		close(s.stopTick)
		s.stopTick = nil
	}
	s.timerOn = false
}
