package utils

var WaitForWithDelays = waitFor
